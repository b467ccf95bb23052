// Package series is the query/projection layer: it shapes the
// calculator's output for the dashboard renderer. This is the only
// surface a visualization front end consumes; it never exposes the
// calculator's cache shape.
package series

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tdworks/basistracker/internal/basis"
	"github.com/tdworks/basistracker/internal/domain"
	"github.com/tdworks/basistracker/internal/ledger"
)

// Series is the renderer-facing view of one (account, ticker) range:
// complete (one point per calendar day) and ordered ascending by day.
type Series struct {
	AccountID      string        `json:"account_id"`
	Symbol         string        `json:"symbol"`
	Points         []basis.Point `json:"points"`
	Incomplete     bool          `json:"incomplete"`
	UnreliableDays []string      `json:"unreliable_days,omitempty"`
}

// AggregatePoint sums invested amount and market value across all
// tickers of one account for one day. MarketValue is nil only when no
// ticker had a price at or before that day; a gap in one ticker just
// excludes that ticker from the day's sum.
type AggregatePoint struct {
	Day            string           `json:"day"`
	InvestedAmount decimal.Decimal  `json:"invested_amount"`
	MarketValue    *decimal.Decimal `json:"market_value,omitempty"`
}

// Aggregate is the all-tickers view of one account.
type Aggregate struct {
	AccountID  string           `json:"account_id"`
	Points     []AggregatePoint `json:"points"`
	Incomplete bool             `json:"incomplete"`
}

// Service answers series queries from the calculator's output.
type Service struct {
	store *ledger.Store
	calc  *basis.Calculator
	log   zerolog.Logger
}

// NewService creates a query service.
func NewService(store *ledger.Store, calc *basis.Calculator, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		calc:  calc,
		log:   log.With().Str("service", "series").Logger(),
	}
}

// GetSeries returns the cost-basis series for (account, ticker) limited
// to [fromDay, toDay]. Empty fromDay means the first transaction day;
// empty toDay means today. The returned sequence has exactly one point
// per calendar day of the effective range and is ordered by day.
func (s *Service) GetSeries(accountID, symbol, fromDay, toDay string) (*Series, error) {
	if toDay == "" {
		toDay = domain.DayOf(time.Now())
	}

	result, err := s.calc.Series(accountID, symbol, toDay)
	if err != nil {
		return nil, fmt.Errorf("failed to derive series for %s/%s: %w", accountID, symbol, err)
	}

	out := &Series{
		AccountID:      accountID,
		Symbol:         symbol,
		Incomplete:     result.Incomplete,
		UnreliableDays: result.UnreliableDays,
	}
	for _, p := range result.Points {
		if fromDay != "" && p.Day < fromDay {
			continue
		}
		out.Points = append(out.Points, p)
	}

	return out, nil
}

// GetAggregate sums invested amount and market value across every
// ticker of the account per day. A ticker whose market value is a gap
// on some day is excluded from that day's sum instead of propagating
// the gap to the whole aggregate.
func (s *Service) GetAggregate(accountID, fromDay, toDay string) (*Aggregate, error) {
	if toDay == "" {
		toDay = domain.DayOf(time.Now())
	}

	tickers, err := s.store.ListTickers(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers for %s: %w", accountID, err)
	}

	agg := &Aggregate{AccountID: accountID}

	type daySum struct {
		invested     decimal.Decimal
		marketValue  decimal.Decimal
		priced       bool // at least one ticker contributed a market value
		contributors bool // at least one ticker has a point for this day
	}
	sums := make(map[string]*daySum)

	for _, ticker := range tickers {
		// Cash movements are ledgered but are not part of the holdings view.
		if ticker.Symbol == domain.CashSymbol {
			continue
		}

		result, err := s.calc.Series(accountID, ticker.Symbol, toDay)
		if err != nil {
			return nil, fmt.Errorf("failed to derive series for %s/%s: %w", accountID, ticker.Symbol, err)
		}
		agg.Incomplete = agg.Incomplete || result.Incomplete

		for _, p := range result.Points {
			if fromDay != "" && p.Day < fromDay {
				continue
			}
			sum, ok := sums[p.Day]
			if !ok {
				sum = &daySum{invested: decimal.Zero, marketValue: decimal.Zero}
				sums[p.Day] = sum
			}
			sum.contributors = true
			sum.invested = sum.invested.Add(p.InvestedAmount)
			if p.MarketValue != nil {
				sum.priced = true
				sum.marketValue = sum.marketValue.Add(*p.MarketValue)
			}
		}
	}

	if len(sums) == 0 {
		return agg, nil
	}

	// The aggregate spans from the earliest contributing day through
	// toDay, one point per day, like the per-ticker series.
	first := ""
	for day := range sums {
		if first == "" || day < first {
			first = day
		}
	}
	days, err := domain.DaysBetween(first, toDay)
	if err != nil {
		return nil, err
	}

	for _, day := range days {
		sum, ok := sums[day]
		if !ok || !sum.contributors {
			continue
		}
		point := AggregatePoint{Day: day, InvestedAmount: sum.invested}
		if sum.priced {
			mv := sum.marketValue
			point.MarketValue = &mv
		}
		agg.Points = append(agg.Points, point)
	}

	return agg, nil
}

// ListAccounts exposes the known accounts for the dashboard's account
// picker.
func (s *Service) ListAccounts() ([]domain.Account, error) {
	return s.store.ListAccounts()
}
