// Package ledger implements the durable store for accounts, tickers,
// transactions, and price snapshots. The transaction table is append-only
// and keyed by the broker's external transaction id, which makes every
// write here idempotent: replaying the same upstream data produces the
// same ledger state.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tdworks/basistracker/internal/domain"
)

// Store handles ledger database operations. The sync engine is the only
// writer; the calculator and query layer read concurrently. SQLite WAL
// mode guarantees readers always see a consistent snapshot.
type Store struct {
	db  *sql.DB // ledger.db
	log zerolog.Logger
}

// transactionColumns is the list of columns for the transactions table.
// Used to avoid SELECT * which can break when schema changes.
// Column order must match scanTransaction().
const transactionColumns = `external_id, account_id, symbol, timestamp, kind, quantity, cash_amount, description, raw_payload`

// NewStore creates a new ledger store.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// storageErr wraps a driver error so callers can classify it as retryable
// via errors.Is(err, domain.ErrStorage) while keeping the original chain.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrStorage, err))
}

// UpsertAccount inserts the account if it does not exist. Existing
// accounts are immutable: only an empty label is ever filled in.
func (s *Store) UpsertAccount(acct domain.Account) error {
	if acct.ID == "" {
		return fmt.Errorf("%w: account has no id", domain.ErrConfiguration)
	}

	createdAt := acct.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO accounts (id, label, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label = excluded.label
		WHERE accounts.label = ''`,
		acct.ID, acct.Label, createdAt.Unix(),
	)
	if err != nil {
		return storageErr("failed to upsert account", err)
	}

	return nil
}

// GetAccount returns one account, or domain.ErrNotFound.
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	row := s.db.QueryRow(`SELECT id, label, created_at FROM accounts WHERE id = ?`, id)

	var acct domain.Account
	var createdAt int64
	err := row.Scan(&acct.ID, &acct.Label, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("failed to get account", err)
	}
	acct.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &acct, nil
}

// ListAccounts returns all known accounts ordered by id.
func (s *Store) ListAccounts() ([]domain.Account, error) {
	rows, err := s.db.Query(`SELECT id, label, created_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, storageErr("failed to query accounts", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acct domain.Account
		var createdAt int64
		if err := rows.Scan(&acct.ID, &acct.Label, &createdAt); err != nil {
			return nil, storageErr("failed to scan account", err)
		}
		acct.CreatedAt = time.Unix(createdAt, 0).UTC()
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating accounts", err)
	}

	return accounts, nil
}

// UpsertTicker creates the ticker lazily on first reference.
func (s *Store) UpsertTicker(accountID, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("%w: ticker has no symbol", domain.ErrConfiguration)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO tickers (account_id, symbol, created_at) VALUES (?, ?, ?)`,
		accountID, symbol, time.Now().Unix(),
	)
	if err != nil {
		return storageErr("failed to upsert ticker", err)
	}

	return nil
}

// ensureTicker creates the account and ticker rows a write is about to
// reference. Tickers exist lazily, from the first transaction or price
// that mentions them; a placeholder account row keeps the foreign keys
// satisfied until the sync engine fills in the label.
func ensureTicker(dbtx *sql.Tx, accountID, symbol string) error {
	now := time.Now().Unix()
	if _, err := dbtx.Exec(`
		INSERT OR IGNORE INTO accounts (id, label, created_at) VALUES (?, '', ?)`,
		accountID, now,
	); err != nil {
		return err
	}
	_, err := dbtx.Exec(`
		INSERT OR IGNORE INTO tickers (account_id, symbol, created_at) VALUES (?, ?, ?)`,
		accountID, symbol, now,
	)
	return err
}

// bumpRevision increments the ticker's data version. Every committed
// write moves the counter, so the fingerprint changes even when two
// revisions of the same price land within one clock second.
func bumpRevision(dbtx *sql.Tx, accountID, symbol string) error {
	_, err := dbtx.Exec(`
		INSERT INTO ledger_revisions (account_id, symbol, data_version) VALUES (?, ?, 1)
		ON CONFLICT(account_id, symbol) DO UPDATE SET data_version = data_version + 1`,
		accountID, symbol,
	)
	return err
}

// ListTickers returns all tickers for an account ordered by symbol.
func (s *Store) ListTickers(accountID string) ([]domain.Ticker, error) {
	rows, err := s.db.Query(`SELECT account_id, symbol FROM tickers WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return nil, storageErr("failed to query tickers", err)
	}
	defer rows.Close()

	var tickers []domain.Ticker
	for rows.Next() {
		var t domain.Ticker
		if err := rows.Scan(&t.AccountID, &t.Symbol); err != nil {
			return nil, storageErr("failed to scan ticker", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating tickers", err)
	}

	return tickers, nil
}

// AppendTransaction appends one immutable transaction. The write is
// idempotent on the external id: if the id already exists the call
// succeeds and reports inserted=false, so the sync engine can distinguish
// progress from repetition. Records are never updated.
func (s *Store) AppendTransaction(tx domain.Transaction) (inserted bool, err error) {
	if err := tx.Validate(); err != nil {
		return false, fmt.Errorf("failed to append transaction: %w", err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(tx.Symbol))

	dbtx, err := s.db.Begin()
	if err != nil {
		return false, storageErr("failed to begin transaction", err)
	}
	defer dbtx.Rollback()

	if err := ensureTicker(dbtx, tx.AccountID, symbol); err != nil {
		return false, storageErr("failed to create ticker", err)
	}

	res, err := dbtx.Exec(`
		INSERT OR IGNORE INTO transactions
		(external_id, account_id, symbol, timestamp, kind, quantity, cash_amount, description, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ExternalID,
		tx.AccountID,
		symbol,
		tx.Timestamp.Unix(),
		string(tx.Kind),
		tx.Quantity.String(),
		tx.CashAmount.String(),
		tx.Description,
		tx.RawPayload,
		time.Now().Unix(),
	)
	if err != nil {
		return false, storageErr("failed to append transaction", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("failed to check append result", err)
	}

	if affected == 0 {
		if err := dbtx.Commit(); err != nil {
			return false, storageErr("failed to commit transaction", err)
		}
		s.log.Debug().
			Str("external_id", tx.ExternalID).
			Msg("Transaction already present, skipping duplicate")
		return false, nil
	}

	if err := bumpRevision(dbtx, tx.AccountID, symbol); err != nil {
		return false, storageErr("failed to bump ledger revision", err)
	}
	if err := dbtx.Commit(); err != nil {
		return false, storageErr("failed to commit transaction", err)
	}

	return true, nil
}

// ListTransactions returns all transactions for (account, ticker) whose
// timestamp falls in [from, to], ordered by timestamp then external id.
// The tie-break on external id gives the calculator a total order for
// same-timestamp transactions. Zero from/to mean unbounded.
func (s *Store) ListTransactions(accountID, symbol string, from, to time.Time) ([]domain.Transaction, error) {
	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE account_id = ? AND symbol = ?`
	args := []interface{}{accountID, strings.ToUpper(strings.TrimSpace(symbol))}

	if !from.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, to.Unix())
	}
	query += " ORDER BY timestamp ASC, external_id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("failed to query transactions", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating transactions", err)
	}

	return txs, nil
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var tx domain.Transaction
	var ts int64
	var kind, quantity, cashAmount string
	var description, rawPayload sql.NullString

	err := rows.Scan(&tx.ExternalID, &tx.AccountID, &tx.Symbol, &ts, &kind, &quantity, &cashAmount, &description, &rawPayload)
	if err != nil {
		return tx, storageErr("failed to scan transaction", err)
	}

	tx.Timestamp = time.Unix(ts, 0).UTC()
	tx.Kind = domain.TxKind(kind)
	tx.Description = description.String
	tx.RawPayload = rawPayload.String

	if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return tx, fmt.Errorf("%w: transaction %s has malformed quantity %q", domain.ErrInvalidLedgerState, tx.ExternalID, quantity)
	}
	if tx.CashAmount, err = decimal.NewFromString(cashAmount); err != nil {
		return tx, fmt.Errorf("%w: transaction %s has malformed cash amount %q", domain.ErrInvalidLedgerState, tx.ExternalID, cashAmount)
	}

	return tx, nil
}

// UpsertPriceSnapshot writes the closing price for one (ticker, day).
// Idempotent on (account, symbol, day): a second call for the same day
// replaces the price, because providers revise closes after the fact.
func (s *Store) UpsertPriceSnapshot(snap domain.PriceSnapshot) error {
	if snap.Close <= 0 {
		return fmt.Errorf("%w: snapshot %s/%s@%s has non-positive close", domain.ErrInvalidLedgerState,
			snap.AccountID, snap.Symbol, snap.Day)
	}
	if _, err := domain.ParseDay(snap.Day); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidLedgerState, err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(snap.Symbol))

	dbtx, err := s.db.Begin()
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer dbtx.Rollback()

	if err := ensureTicker(dbtx, snap.AccountID, symbol); err != nil {
		return storageErr("failed to create ticker", err)
	}

	_, err = dbtx.Exec(`
		INSERT INTO price_snapshots (account_id, symbol, day, close, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, symbol, day) DO UPDATE SET
			close = excluded.close,
			updated_at = excluded.updated_at`,
		snap.AccountID,
		symbol,
		snap.Day,
		snap.Close,
		time.Now().Unix(),
	)
	if err != nil {
		return storageErr("failed to upsert price snapshot", err)
	}

	if err := bumpRevision(dbtx, snap.AccountID, symbol); err != nil {
		return storageErr("failed to bump ledger revision", err)
	}
	if err := dbtx.Commit(); err != nil {
		return storageErr("failed to commit price snapshot", err)
	}

	return nil
}

// ListPriceSnapshots returns snapshots for (account, ticker) with day in
// [fromDay, toDay], ascending. Empty bounds mean unbounded.
func (s *Store) ListPriceSnapshots(accountID, symbol, fromDay, toDay string) ([]domain.PriceSnapshot, error) {
	query := `SELECT account_id, symbol, day, close FROM price_snapshots
		WHERE account_id = ? AND symbol = ?`
	args := []interface{}{accountID, strings.ToUpper(strings.TrimSpace(symbol))}

	if fromDay != "" {
		query += " AND day >= ?"
		args = append(args, fromDay)
	}
	if toDay != "" {
		query += " AND day <= ?"
		args = append(args, toDay)
	}
	query += " ORDER BY day ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("failed to query price snapshots", err)
	}
	defer rows.Close()

	var snaps []domain.PriceSnapshot
	for rows.Next() {
		var snap domain.PriceSnapshot
		if err := rows.Scan(&snap.AccountID, &snap.Symbol, &snap.Day, &snap.Close); err != nil {
			return nil, storageErr("failed to scan price snapshot", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating price snapshots", err)
	}

	return snaps, nil
}

// LatestSnapshotDay returns the most recent snapshot day for a ticker, or
// "" when none exists yet.
func (s *Store) LatestSnapshotDay(accountID, symbol string) (string, error) {
	row := s.db.QueryRow(`
		SELECT day FROM price_snapshots
		WHERE account_id = ? AND symbol = ?
		ORDER BY day DESC LIMIT 1`,
		accountID, strings.ToUpper(strings.TrimSpace(symbol)),
	)

	var day string
	err := row.Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("failed to get latest snapshot day", err)
	}

	return day, nil
}

// FirstTransactionDay returns the trade date of the earliest transaction
// for a ticker, or "" when the ticker has no transactions.
func (s *Store) FirstTransactionDay(accountID, symbol string) (string, error) {
	row := s.db.QueryRow(`
		SELECT timestamp FROM transactions
		WHERE account_id = ? AND symbol = ?
		ORDER BY timestamp ASC LIMIT 1`,
		accountID, strings.ToUpper(strings.TrimSpace(symbol)),
	)

	var ts int64
	err := row.Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("failed to get first transaction day", err)
	}

	return domain.DayOf(time.Unix(ts, 0)), nil
}

// GetCursor returns the persisted high-water mark for an account. The
// second return is false when the account has never completed a sync.
func (s *Store) GetCursor(accountID string) (time.Time, bool, error) {
	row := s.db.QueryRow(`SELECT high_water FROM sync_cursors WHERE account_id = ?`, accountID)

	var hw int64
	err := row.Scan(&hw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storageErr("failed to get sync cursor", err)
	}

	return time.Unix(hw, 0).UTC(), true, nil
}

// SetCursor advances the high-water mark for an account. Called only
// after the account's batch has fully committed, so a crash mid-batch
// re-requests the batch on the next run and the idempotent append absorbs
// the re-delivery.
func (s *Store) SetCursor(accountID string, highWater time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_cursors (account_id, high_water, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			high_water = excluded.high_water,
			updated_at = excluded.updated_at`,
		accountID, highWater.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return storageErr("failed to set sync cursor", err)
	}

	return nil
}

// Fingerprint summarizes the ledger state backing one (account, ticker)
// series. Built on the monotonic data version every write bumps, so any
// new transaction or revised price changes the fingerprint and
// invalidates cached derived series, regardless of write timing.
func (s *Store) Fingerprint(accountID, symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	var txCount int64
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM transactions
		WHERE account_id = ? AND symbol = ?`,
		accountID, symbol,
	).Scan(&txCount)
	if err != nil {
		return "", storageErr("failed to fingerprint transactions", err)
	}

	var priceCount int64
	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM price_snapshots
		WHERE account_id = ? AND symbol = ?`,
		accountID, symbol,
	).Scan(&priceCount)
	if err != nil {
		return "", storageErr("failed to fingerprint price snapshots", err)
	}

	var version sql.NullInt64
	err = s.db.QueryRow(`
		SELECT data_version FROM ledger_revisions
		WHERE account_id = ? AND symbol = ?`,
		accountID, symbol,
	).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", storageErr("failed to fingerprint ledger revision", err)
	}

	return fmt.Sprintf("t%d-p%d-v%d", txCount, priceCount, version.Int64), nil
}
