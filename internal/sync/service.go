// Package sync implements the engine that brings the ledger store up to
// date with the external trading platform. Runs are batch jobs: cron
// scheduled or manually triggered, resumable after partial failure, and
// safe to repeat because every ledger write is idempotent.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tdworks/basistracker/internal/alert"
	"github.com/tdworks/basistracker/internal/clients/brokerage"
	"github.com/tdworks/basistracker/internal/domain"
	"github.com/tdworks/basistracker/internal/ledger"
)

// DefaultOverlap is re-requested before the persisted high-water mark on
// every run. The platform delivers records out of order within a batch
// and sometimes backdates settlement, so a resumed sync must look a
// little further back than where it stopped; the ledger's idempotent
// append absorbs the resulting re-deliveries.
const DefaultOverlap = 7 * 24 * time.Hour

// Service pulls transactions and prices from the platform API and
// appends only new, validated records to the ledger store.
type Service struct {
	store    *ledger.Store
	api      brokerage.API
	notifier alert.Notifier
	accounts map[string]bool
	overlap  time.Duration
	retry    RetryConfig
	log      zerolog.Logger
}

// Config holds sync engine configuration.
type Config struct {
	Store    *ledger.Store
	API      brokerage.API
	Notifier alert.Notifier
	Accounts []string      // restrict runs to these account ids; empty means all
	Overlap  time.Duration // zero means DefaultOverlap
	Retry    RetryConfig   // zero means DefaultRetry
	Log      zerolog.Logger
}

// New creates a sync service.
func New(cfg Config) *Service {
	if cfg.Overlap <= 0 {
		cfg.Overlap = DefaultOverlap
	}
	if cfg.Retry.Attempts < 1 {
		cfg.Retry = DefaultRetry
	}
	if cfg.Notifier == nil {
		cfg.Notifier = alert.Nop{}
	}

	var accounts map[string]bool
	if len(cfg.Accounts) > 0 {
		accounts = make(map[string]bool, len(cfg.Accounts))
		for _, id := range cfg.Accounts {
			accounts[id] = true
		}
	}

	return &Service{
		store:    cfg.Store,
		api:      cfg.API,
		notifier: cfg.Notifier,
		accounts: accounts,
		overlap:  cfg.Overlap,
		retry:    cfg.Retry,
		log:      cfg.Log.With().Str("job", "sync").Logger(),
	}
}

// Report summarizes one sync run.
type Report struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	AccountsSynced  []string  `json:"accounts_synced"`
	AccountsFailed  []string  `json:"accounts_failed"`
	NewTransactions int       `json:"new_transactions"`
	Duplicates      int       `json:"duplicates"`
	PriceSnapshots  int       `json:"price_snapshots"`
}

// Run executes one full sync pass over every account the platform
// reports. A failure in one account is reported to the alert sink and
// the run proceeds to the next account; only store-wide unavailability
// or context cancellation aborts the whole run. Cancellation is honored
// between account boundaries, never mid-batch.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	log := s.log.With().Str("run_id", report.RunID).Logger()
	log.Info().Msg("Starting sync run")

	var accounts []brokerage.RawAccount
	err := withRetry(ctx, log, "fetch accounts", s.retry, func() error {
		var err error
		accounts, err = s.api.FetchAccounts(ctx)
		return err
	})
	if err != nil {
		s.notifier.Notify(alert.SeverityError, fmt.Sprintf("sync %s: unable to list accounts: %v", report.RunID, err))
		return report, fmt.Errorf("failed to list accounts: %w", err)
	}

	for _, acct := range accounts {
		if s.accounts != nil && !s.accounts[acct.ID] {
			log.Debug().Str("account", acct.ID).Msg("Account not in sync allowlist, skipping")
			continue
		}

		// Abort only between account boundaries.
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now().UTC()
			return report, fmt.Errorf("sync run aborted: %w", err)
		}

		if err := s.syncAccount(ctx, log, acct, report); err != nil {
			// Store-wide unavailability is not recoverable by moving on.
			if errors.Is(err, domain.ErrStorage) {
				s.notifier.Notify(alert.SeverityError, fmt.Sprintf("sync %s: ledger store unavailable: %v", report.RunID, err))
				report.FinishedAt = time.Now().UTC()
				return report, fmt.Errorf("ledger store unavailable: %w", err)
			}

			log.Error().Err(err).Str("account", acct.ID).Msg("Account sync failed, continuing with next account")
			s.notifier.Notify(alert.SeverityError, fmt.Sprintf("sync %s: account %s failed: %v", report.RunID, acct.ID, err))
			report.AccountsFailed = append(report.AccountsFailed, acct.ID)
			continue
		}

		report.AccountsSynced = append(report.AccountsSynced, acct.ID)
	}

	report.FinishedAt = time.Now().UTC()
	log.Info().
		Int("accounts_synced", len(report.AccountsSynced)).
		Int("accounts_failed", len(report.AccountsFailed)).
		Int("new_transactions", report.NewTransactions).
		Int("duplicates", report.Duplicates).
		Int("price_snapshots", report.PriceSnapshots).
		Msg("Sync run finished")

	return report, nil
}

// syncAccount ingests one account's transactions and then refreshes
// price history for every ticker the account has touched.
func (s *Service) syncAccount(ctx context.Context, log zerolog.Logger, acct brokerage.RawAccount, report *Report) error {
	log = log.With().Str("account", acct.ID).Logger()

	if err := s.store.UpsertAccount(domain.Account{ID: acct.ID, Label: acct.Label}); err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}

	if err := s.syncTransactions(ctx, log, acct.ID, report); err != nil {
		return err
	}

	return s.syncPrices(ctx, log, acct.ID, report)
}

func (s *Service) syncTransactions(ctx context.Context, log zerolog.Logger, accountID string, report *Report) error {
	// Resume from the persisted high-water mark, minus the overlap
	// window. First sync for an account walks the full history.
	var since time.Time
	cursor, ok, err := s.store.GetCursor(accountID)
	if err != nil {
		return fmt.Errorf("failed to read sync cursor: %w", err)
	}
	if ok {
		since = cursor.Add(-s.overlap)
	}

	var raws []brokerage.RawTransaction
	err = withRetry(ctx, log, "fetch transactions", s.retry, func() error {
		var err error
		raws, err = s.api.FetchTransactions(ctx, accountID, since)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}

	txs := make([]domain.Transaction, 0, len(raws))
	for _, raw := range raws {
		tx, err := brokerage.ToDomainTransaction(accountID, raw)
		if err != nil {
			// A record we cannot even identify is reported and skipped; it
			// must not sink the rest of the batch.
			log.Warn().Err(err).Msg("Skipping malformed transaction record")
			s.notifier.Notify(alert.SeverityWarning, fmt.Sprintf("account %s: skipped malformed record: %v", accountID, err))
			continue
		}
		txs = append(txs, tx)
	}

	// Append in the order the calculator replays: timestamp, then
	// external id. The platform makes no ordering promise within a batch.
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].ExternalID < txs[j].ExternalID
		}
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})

	var highWater time.Time
	for _, tx := range txs {
		// The store creates the ticker lazily on first reference.
		inserted, err := s.store.AppendTransaction(tx)
		if err != nil {
			// Stop at the first failed write: the cursor stays behind the
			// last fully-committed transaction and the next run re-requests
			// the remainder.
			return fmt.Errorf("failed to append transaction %s: %w", tx.ExternalID, err)
		}

		if inserted {
			report.NewTransactions++
			if tx.Kind == domain.TxUnsupported {
				log.Warn().
					Str("external_id", tx.ExternalID).
					Str("symbol", tx.Symbol).
					Msg("Stored transaction of unsupported kind")
			}
		} else {
			report.Duplicates++
		}

		if tx.Timestamp.After(highWater) {
			highWater = tx.Timestamp
		}
	}

	// Advance the high-water mark only after the whole batch committed.
	if !highWater.IsZero() {
		if err := s.store.SetCursor(accountID, highWater); err != nil {
			return fmt.Errorf("failed to advance sync cursor: %w", err)
		}
	}

	log.Debug().
		Int("fetched", len(raws)).
		Time("high_water", highWater).
		Msg("Transactions synced")

	return nil
}

// syncPrices pulls a closing price per day for every ticker with at
// least one transaction in the account. Days the provider omits (market
// holidays) simply produce no snapshot: a gap, not a zero.
func (s *Service) syncPrices(ctx context.Context, log zerolog.Logger, accountID string, report *Report) error {
	tickers, err := s.store.ListTickers(accountID)
	if err != nil {
		return fmt.Errorf("failed to list tickers: %w", err)
	}

	today := domain.DayOf(time.Now())

	for _, ticker := range tickers {
		// The cash pseudo-ticker has no market price.
		if ticker.Symbol == domain.CashSymbol {
			continue
		}

		fromDay, err := s.priceSyncStart(accountID, ticker.Symbol)
		if err != nil {
			return err
		}
		if fromDay == "" || fromDay > today {
			// No transactions yet, or prices already current.
			continue
		}

		var closes []brokerage.DailyClose
		err = withRetry(ctx, log, "fetch daily closes", s.retry, func() error {
			var err error
			closes, err = s.api.FetchDailyCloses(ctx, ticker.Symbol, fromDay, today)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to fetch prices for %s: %w", ticker.Symbol, err)
		}

		for _, c := range closes {
			err := s.store.UpsertPriceSnapshot(domain.PriceSnapshot{
				AccountID: accountID,
				Symbol:    ticker.Symbol,
				Day:       c.Day,
				Close:     c.Close,
			})
			if err != nil {
				return fmt.Errorf("failed to store price for %s on %s: %w", ticker.Symbol, c.Day, err)
			}
			report.PriceSnapshots++
		}

		log.Debug().
			Str("symbol", ticker.Symbol).
			Str("from", fromDay).
			Int("closes", len(closes)).
			Msg("Prices synced")
	}

	return nil
}

// priceSyncStart picks the first day to request prices for: the day
// after the latest stored snapshot, or the first transaction day when no
// snapshot exists yet. Returns "" when the ticker has no transactions.
func (s *Service) priceSyncStart(accountID, symbol string) (string, error) {
	latest, err := s.store.LatestSnapshotDay(accountID, symbol)
	if err != nil {
		return "", fmt.Errorf("failed to find latest snapshot for %s: %w", symbol, err)
	}
	if latest != "" {
		next, err := domain.NextDay(latest)
		if err != nil {
			return "", fmt.Errorf("malformed snapshot day for %s: %w", symbol, err)
		}
		return next, nil
	}

	first, err := s.store.FirstTransactionDay(accountID, symbol)
	if err != nil {
		return "", fmt.Errorf("failed to find first transaction day for %s: %w", symbol, err)
	}
	return first, nil
}
