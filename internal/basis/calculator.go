// Package basis derives the cost-basis and valuation series from the
// transaction ledger. Balances are never stored as mutable state: every
// series is a pure function of the ledger, replayed deterministically,
// so a recompute after any ingest always agrees with itself.
package basis

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tdworks/basistracker/internal/domain"
	"github.com/tdworks/basistracker/internal/ledger"
)

// Point is the derived state of one (account, ticker) at the end of one
// calendar day. MarketValue is nil when no price snapshot exists at or
// before the day: a gap, never zero.
type Point struct {
	Day            string           `json:"day"`
	Quantity       decimal.Decimal  `json:"quantity"`
	InvestedAmount decimal.Decimal  `json:"invested_amount"`
	MarketValue    *decimal.Decimal `json:"market_value,omitempty"`
}

// Result is one replayed series plus the metadata a consumer needs to
// judge its completeness.
type Result struct {
	AccountID string  `json:"account_id"`
	Symbol    string  `json:"symbol"`
	Points    []Point `json:"points"`

	// Incomplete is set when the ledger holds UNSUPPORTED transactions
	// for this ticker. They do not alter the computed series, but the
	// series may not reflect everything that happened.
	Incomplete bool `json:"incomplete"`

	// UnreliableDays lists days excluded from Points because replay hit
	// an impossible state there, e.g. a disposal exceeding the position.
	UnreliableDays []string `json:"unreliable_days,omitempty"`
}

// Calculator replays the ledger into valuation series. It owns a cache
// of derived results but treats the ledger as the sole source of truth:
// any ledger change invalidates the cached series via the fingerprint.
type Calculator struct {
	store *ledger.Store
	cache *Cache // optional
	log   zerolog.Logger
}

// NewCalculator creates a calculator. cache may be nil, in which case
// every request replays from the ledger.
func NewCalculator(store *ledger.Store, cache *Cache, log zerolog.Logger) *Calculator {
	return &Calculator{
		store: store,
		cache: cache,
		log:   log.With().Str("component", "basis").Logger(),
	}
}

// Series returns the cost-basis series for (account, ticker) from the
// first transaction day through throughDay (today when empty), one point
// per calendar day. The replay is deterministic: transactions are
// ordered by timestamp then external id, so ingestion order never
// changes the output.
func (c *Calculator) Series(accountID, symbol, throughDay string) (*Result, error) {
	if throughDay == "" {
		throughDay = domain.DayOf(time.Now())
	}
	if _, err := domain.ParseDay(throughDay); err != nil {
		return nil, err
	}

	fingerprint, err := c.store.Fingerprint(accountID, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint ledger: %w", err)
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(accountID, symbol, fingerprint, throughDay); ok {
			return cached, nil
		}
	}

	result, err := c.replay(accountID, symbol, throughDay)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Put(result, fingerprint, throughDay)
	}

	return result, nil
}

// replay walks the full transaction history for (account, ticker) and
// emits one point per day.
func (c *Calculator) replay(accountID, symbol, throughDay string) (*Result, error) {
	result := &Result{AccountID: accountID, Symbol: symbol}

	endOfDay, err := domain.ParseDay(throughDay)
	if err != nil {
		return nil, err
	}
	endOfDay = endOfDay.AddDate(0, 0, 1).Add(-time.Second)

	txs, err := c.store.ListTransactions(accountID, symbol, time.Time{}, endOfDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txs) == 0 {
		return result, nil
	}

	snaps, err := c.store.ListPriceSnapshots(accountID, symbol, "", throughDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load price snapshots: %w", err)
	}

	days, err := domain.DaysBetween(txs[0].Day(), throughDay)
	if err != nil {
		return nil, err
	}

	// Running state. Invested amount uses decimal arithmetic so the
	// proportional reductions on disposal do not drift across many small
	// sales.
	quantity := decimal.Zero
	invested := decimal.Zero

	txIdx, snapIdx := 0, 0
	var lastClose *decimal.Decimal

	for _, day := range days {
		dayReliable := true

		// Apply this day's transactions in replay order.
		for txIdx < len(txs) && txs[txIdx].Day() == day {
			tx := txs[txIdx]
			txIdx++

			switch {
			case tx.Kind.Acquires():
				quantity = quantity.Add(tx.Quantity.Abs())
				invested = invested.Add(tx.CashAmount.Abs())

			case tx.Kind.Disposes():
				disposed := tx.Quantity.Abs()
				if quantity.IsZero() || disposed.GreaterThan(quantity) {
					// Impossible state: selling more than held. The day is
					// excluded from the series, the run continues.
					c.log.Warn().
						Str("account", accountID).
						Str("symbol", symbol).
						Str("external_id", tx.ExternalID).
						Str("day", day).
						Msg("Disposal exceeds position, marking day unreliable")
					dayReliable = false
					continue
				}
				// Average-cost basis: reduce the invested amount in
				// proportion to the quantity disposed.
				invested = invested.Sub(invested.Mul(disposed).Div(quantity))
				quantity = quantity.Sub(disposed)

			default: // UNSUPPORTED
				result.Incomplete = true
			}
		}

		// Advance to the latest snapshot at or before this day. Prices
		// from the future are never used.
		for snapIdx < len(snaps) && snaps[snapIdx].Day <= day {
			px := decimal.NewFromFloat(snaps[snapIdx].Close)
			lastClose = &px
			snapIdx++
		}

		if !dayReliable {
			result.UnreliableDays = append(result.UnreliableDays, day)
			continue
		}

		point := Point{
			Day:            day,
			Quantity:       quantity,
			InvestedAmount: invested,
		}
		if lastClose != nil {
			mv := quantity.Mul(*lastClose)
			point.MarketValue = &mv
		}
		result.Points = append(result.Points, point)
	}

	return result, nil
}
