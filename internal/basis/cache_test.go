package basis

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func setupCacheDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE basis_series_cache (
			account_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			series BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (account_id, symbol)
		)
	`)
	require.NoError(t, err)

	return db
}

func sampleResult() *Result {
	mv := decimal.NewFromInt(1050)
	return &Result{
		AccountID: "acct-1",
		Symbol:    "AAPL",
		Points: []Point{
			{Day: "2024-03-11", Quantity: decimal.NewFromInt(10), InvestedAmount: decimal.NewFromInt(1000), MarketValue: &mv},
			{Day: "2024-03-12", Quantity: decimal.NewFromInt(10), InvestedAmount: decimal.NewFromInt(1000)},
		},
	}
}

func TestCache_HitRequiresExactFingerprintAndDay(t *testing.T) {
	db := setupCacheDB(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	cache := NewCache(db, log)

	cache.Put(sampleResult(), "fp-1", "2024-03-12")

	got, ok := cache.Get("acct-1", "AAPL", "fp-1", "2024-03-12")
	require.True(t, ok)
	require.Len(t, got.Points, 2)
	assert.Equal(t, "10", got.Points[0].Quantity.String())
	assert.Equal(t, "1000", got.Points[0].InvestedAmount.String())
	require.NotNil(t, got.Points[0].MarketValue)
	assert.Equal(t, "1050", got.Points[0].MarketValue.String())
	assert.Nil(t, got.Points[1].MarketValue)

	// A different ledger fingerprint is a miss
	_, ok = cache.Get("acct-1", "AAPL", "fp-2", "2024-03-12")
	assert.False(t, ok)

	// A different through-day is a miss
	_, ok = cache.Get("acct-1", "AAPL", "fp-1", "2024-03-13")
	assert.False(t, ok)

	// An unknown ticker is a miss
	_, ok = cache.Get("acct-1", "MSFT", "fp-1", "2024-03-12")
	assert.False(t, ok)
}

func TestCache_PutReplacesPreviousEntry(t *testing.T) {
	db := setupCacheDB(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	cache := NewCache(db, log)

	cache.Put(sampleResult(), "fp-1", "2024-03-12")

	updated := sampleResult()
	updated.Points = updated.Points[:1]
	cache.Put(updated, "fp-2", "2024-03-12")

	// Old fingerprint no longer served
	_, ok := cache.Get("acct-1", "AAPL", "fp-1", "2024-03-12")
	assert.False(t, ok)

	got, ok := cache.Get("acct-1", "AAPL", "fp-2", "2024-03-12")
	require.True(t, ok)
	assert.Len(t, got.Points, 1)
}

func TestCache_CorruptBlobIsAMiss(t *testing.T) {
	db := setupCacheDB(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	cache := NewCache(db, log)

	_, err := db.Exec(`
		INSERT INTO basis_series_cache (account_id, symbol, fingerprint, series, created_at)
		VALUES ('acct-1', 'AAPL', 'fp-1', X'DEADBEEF', 0)
	`)
	require.NoError(t, err)

	_, ok := cache.Get("acct-1", "AAPL", "fp-1", "2024-03-12")
	assert.False(t, ok)
}
