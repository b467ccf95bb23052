package basis

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache persists derived series in cache.db so repeated dashboard
// requests do not replay an unchanged ledger. Entries are keyed by the
// ledger fingerprint: a cached series is served only when the ledger
// state it was derived from is byte-for-byte the current one. Cache
// failures are logged and treated as misses, never surfaced to callers.
type Cache struct {
	db  *sql.DB // cache.db
	log zerolog.Logger
}

// NewCache creates a series cache backed by cache.db.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("repo", "basis_cache").Logger(),
	}
}

// cachedSeries is the msgpack envelope stored in the blob column.
// Decimals travel as strings to stay exact across encode/decode.
type cachedSeries struct {
	Fingerprint    string        `msgpack:"fingerprint"`
	ThroughDay     string        `msgpack:"through_day"`
	Incomplete     bool          `msgpack:"incomplete"`
	UnreliableDays []string      `msgpack:"unreliable_days"`
	Points         []cachedPoint `msgpack:"points"`
}

type cachedPoint struct {
	Day            string  `msgpack:"day"`
	Quantity       string  `msgpack:"quantity"`
	InvestedAmount string  `msgpack:"invested_amount"`
	MarketValue    *string `msgpack:"market_value"`
}

// Get returns the cached series for (account, ticker) when it was
// derived from exactly the given ledger fingerprint through the same
// day. Any mismatch or decode failure is a miss.
func (c *Cache) Get(accountID, symbol, fingerprint, throughDay string) (*Result, bool) {
	var blob []byte
	err := c.db.QueryRow(`
		SELECT series FROM basis_series_cache
		WHERE account_id = ? AND symbol = ?`,
		accountID, symbol,
	).Scan(&blob)
	if err != nil {
		return nil, false
	}

	var cached cachedSeries
	if err := msgpack.Unmarshal(blob, &cached); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to decode cached series, treating as miss")
		return nil, false
	}

	if cached.Fingerprint != fingerprint || cached.ThroughDay != throughDay {
		return nil, false
	}

	result := &Result{
		AccountID:      accountID,
		Symbol:         symbol,
		Incomplete:     cached.Incomplete,
		UnreliableDays: cached.UnreliableDays,
	}
	for _, p := range cached.Points {
		point, err := p.toPoint()
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Malformed cached point, treating as miss")
			return nil, false
		}
		result.Points = append(result.Points, point)
	}

	return result, true
}

// Put stores a freshly derived series, replacing any previous entry for
// the (account, ticker).
func (c *Cache) Put(result *Result, fingerprint, throughDay string) {
	cached := cachedSeries{
		Fingerprint:    fingerprint,
		ThroughDay:     throughDay,
		Incomplete:     result.Incomplete,
		UnreliableDays: result.UnreliableDays,
	}
	for _, p := range result.Points {
		cached.Points = append(cached.Points, fromPoint(p))
	}

	blob, err := msgpack.Marshal(cached)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", result.Symbol).Msg("Failed to encode series for cache")
		return
	}

	_, err = c.db.Exec(`
		INSERT INTO basis_series_cache (account_id, symbol, fingerprint, series, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, symbol) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			series = excluded.series,
			created_at = excluded.created_at`,
		result.AccountID, result.Symbol, fingerprint, blob, time.Now().Unix(),
	)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", result.Symbol).Msg("Failed to store series in cache")
	}
}

func fromPoint(p Point) cachedPoint {
	cp := cachedPoint{
		Day:            p.Day,
		Quantity:       p.Quantity.String(),
		InvestedAmount: p.InvestedAmount.String(),
	}
	if p.MarketValue != nil {
		mv := p.MarketValue.String()
		cp.MarketValue = &mv
	}
	return cp
}

func (p cachedPoint) toPoint() (Point, error) {
	quantity, err := decimal.NewFromString(p.Quantity)
	if err != nil {
		return Point{}, err
	}
	invested, err := decimal.NewFromString(p.InvestedAmount)
	if err != nil {
		return Point{}, err
	}

	point := Point{Day: p.Day, Quantity: quantity, InvestedAmount: invested}
	if p.MarketValue != nil {
		mv, err := decimal.NewFromString(*p.MarketValue)
		if err != nil {
			return Point{}, err
		}
		point.MarketValue = &mv
	}
	return point, nil
}
