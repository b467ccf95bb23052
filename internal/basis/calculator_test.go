package basis

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdworks/basistracker/internal/domain"
	"github.com/tdworks/basistracker/internal/ledger"
	testutil "github.com/tdworks/basistracker/internal/testing"
)

func setupCalculator(t *testing.T) (*ledger.Store, *Calculator) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	ledgerDB, cleanup := testutil.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	store := ledger.NewStore(ledgerDB.Conn(), log)

	cacheDB, cleanupCache := testutil.NewTestDB(t, "cache")
	t.Cleanup(cleanupCache)
	cache := NewCache(cacheDB.Conn(), log)

	require.NoError(t, store.UpsertAccount(domain.Account{ID: "acct-1"}))

	return store, NewCalculator(store, cache, log)
}

func mustAppend(t *testing.T, store *ledger.Store, tx domain.Transaction) {
	t.Helper()
	_, err := store.AppendTransaction(tx)
	require.NoError(t, err)
}

func ts(day string, hour int) time.Time {
	d, _ := time.Parse("2006-01-02", day)
	return d.Add(time.Duration(hour) * time.Hour)
}

func TestSeries_AverageCostReducesProportionally(t *testing.T) {
	store, calc := setupCalculator(t)

	// Buy 10 for 1000, sell 4: the remaining 6 shares carry 600 of basis
	mustAppend(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", ts("2024-03-11", 14), 10, 1000))
	mustAppend(t, store, testutil.NewSellFixture("acct-1", "AAPL", "tx-2", ts("2024-03-12", 14), 4, 480))

	result, err := calc.Series("acct-1", "AAPL", "2024-03-12")
	require.NoError(t, err)
	require.Len(t, result.Points, 2)

	assert.Equal(t, "2024-03-11", result.Points[0].Day)
	assert.Equal(t, "10", result.Points[0].Quantity.String())
	assert.Equal(t, "1000", result.Points[0].InvestedAmount.String())

	assert.Equal(t, "2024-03-12", result.Points[1].Day)
	assert.Equal(t, "6", result.Points[1].Quantity.String())
	assert.Equal(t, "600", result.Points[1].InvestedAmount.String())

	assert.False(t, result.Incomplete)
	assert.Empty(t, result.UnreliableDays)
}

func TestSeries_OnePointPerDayWithCarryForward(t *testing.T) {
	store, calc := setupCalculator(t)

	// One buy, then nothing for three days
	mustAppend(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", ts("2024-03-11", 14), 10, 1000))

	result, err := calc.Series("acct-1", "AAPL", "2024-03-14")
	require.NoError(t, err)
	require.Len(t, result.Points, 4)

	for i, day := range []string{"2024-03-11", "2024-03-12", "2024-03-13", "2024-03-14"} {
		assert.Equal(t, day, result.Points[i].Day)
		assert.Equal(t, "10", result.Points[i].Quantity.String())
		assert.Equal(t, "1000", result.Points[i].InvestedAmount.String())
	}
}

func TestSeries_PriceGapIsNilNeverZero(t *testing.T) {
	store, calc := setupCalculator(t)

	mustAppend(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", ts("2024-03-11", 14), 10, 1000))

	// Snapshot on the 11th and 13th; the 12th is a market holiday
	require.NoError(t, store.UpsertPriceSnapshot(testutil.NewSnapshotFixture("acct-1", "AAPL", "2024-03-11", 100)))
	require.NoError(t, store.UpsertPriceSnapshot(testutil.NewSnapshotFixture("acct-1", "AAPL", "2024-03-13", 110)))

	result, err := calc.Series("acct-1", "AAPL", "2024-03-13")
	require.NoError(t, err)
	require.Len(t, result.Points, 3)

	require.NotNil(t, result.Points[0].MarketValue)
	assert.Equal(t, "1000", result.Points[0].MarketValue.String())

	// Holiday carries the 11th's close forward, never zero
	require.NotNil(t, result.Points[1].MarketValue)
	assert.Equal(t, "1000", result.Points[1].MarketValue.String())

	require.NotNil(t, result.Points[2].MarketValue)
	assert.Equal(t, "1100", result.Points[2].MarketValue.String())
}

func TestSeries_NoPriceYetMeansNilMarketValue(t *testing.T) {
	store, calc := setupCalculator(t)

	mustAppend(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", ts("2024-03-11", 14), 10, 1000))

	result, err := calc.Series("acct-1", "AAPL", "2024-03-12")
	require.NoError(t, err)
	require.Len(t, result.Points, 2)
	assert.Nil(t, result.Points[0].MarketValue)
	assert.Nil(t, result.Points[1].MarketValue)
}

func TestSeries_UnsupportedKindMarksIncomplete(t *testing.T) {
	store, calc := setupCalculator(t)

	mustAppend(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", ts("2024-03-11", 14), 10, 1000))

	odd := domain.Transaction{
		ExternalID: "tx-2",
		AccountID:  "acct-1",
		Symbol:     "AAPL",
		Timestamp:  ts("2024-03-12", 14),
		Kind:       domain.TxUnsupported,
		RawPayload: `{"type":"JOURNAL"}`,
	}
	mustAppend(t, store, odd)

	result, err := calc.Series("acct-1", "AAPL", "2024-03-12")
	require.NoError(t, err)
	assert.True(t, result.Incomplete)

	// The unsupported record does not change the position
	require.Len(t, result.Points, 2)
	assert.Equal(t, "10", result.Points[1].Quantity.String())
	assert.Equal(t, "1000", result.Points[1].InvestedAmount.String())
}

func TestSeries_OversellMarksDayUnreliable(t *testing.T) {
	store, calc := setupCalculator(t)

	mustAppend(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", ts("2024-03-11", 14), 10, 1000))
	mustAppend(t, store, testutil.NewSellFixture("acct-1", "AAPL", "tx-2", ts("2024-03-12", 14), 25, 2500))

	result, err := calc.Series("acct-1", "AAPL", "2024-03-13")
	require.NoError(t, err)

	// The impossible day is excluded, the series continues after it
	assert.Equal(t, []string{"2024-03-12"}, result.UnreliableDays)
	require.Len(t, result.Points, 2)
	assert.Equal(t, "2024-03-11", result.Points[0].Day)
	assert.Equal(t, "2024-03-13", result.Points[1].Day)
	assert.Equal(t, "10", result.Points[1].Quantity.String())
}

func TestSeries_DeterministicAcrossIngestionOrder(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	build := func(t *testing.T, ids []string) *Result {
		ledgerDB, cleanup := testutil.NewTestDB(t, "ledger")
		t.Cleanup(cleanup)
		store := ledger.NewStore(ledgerDB.Conn(), log)
		require.NoError(t, store.UpsertAccount(domain.Account{ID: "acct-1"}))

		fixtures := map[string]domain.Transaction{
			"tx-1": testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", ts("2024-03-11", 10), 10, 1000),
			"tx-2": testutil.NewBuyFixture("acct-1", "AAPL", "tx-2", ts("2024-03-11", 15), 5, 550),
			"tx-3": testutil.NewSellFixture("acct-1", "AAPL", "tx-3", ts("2024-03-12", 11), 6, 700),
		}
		for _, id := range ids {
			mustAppend(t, store, fixtures[id])
		}

		calc := NewCalculator(store, nil, log)
		result, err := calc.Series("acct-1", "AAPL", "2024-03-12")
		require.NoError(t, err)
		return result
	}

	forward := build(t, []string{"tx-1", "tx-2", "tx-3"})
	reversed := build(t, []string{"tx-3", "tx-2", "tx-1"})

	require.Equal(t, len(forward.Points), len(reversed.Points))
	for i := range forward.Points {
		assert.Equal(t, forward.Points[i].Day, reversed.Points[i].Day)
		assert.True(t, forward.Points[i].Quantity.Equal(reversed.Points[i].Quantity))
		assert.True(t, forward.Points[i].InvestedAmount.Equal(reversed.Points[i].InvestedAmount))
	}
}

func TestSeries_EmptyLedgerYieldsEmptySeries(t *testing.T) {
	_, calc := setupCalculator(t)

	result, err := calc.Series("acct-1", "AAPL", "2024-03-12")
	require.NoError(t, err)
	assert.Empty(t, result.Points)
	assert.False(t, result.Incomplete)
}

func TestSeries_CacheRoundTripAndInvalidation(t *testing.T) {
	store, calc := setupCalculator(t)

	mustAppend(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", ts("2024-03-11", 14), 10, 1000))
	require.NoError(t, store.UpsertPriceSnapshot(testutil.NewSnapshotFixture("acct-1", "AAPL", "2024-03-11", 105)))

	first, err := calc.Series("acct-1", "AAPL", "2024-03-12")
	require.NoError(t, err)

	// Second call is served from cache and must agree exactly
	second, err := calc.Series("acct-1", "AAPL", "2024-03-12")
	require.NoError(t, err)
	require.Equal(t, len(first.Points), len(second.Points))
	for i := range first.Points {
		assert.Equal(t, first.Points[i].Day, second.Points[i].Day)
		assert.True(t, first.Points[i].Quantity.Equal(second.Points[i].Quantity))
		assert.True(t, first.Points[i].InvestedAmount.Equal(second.Points[i].InvestedAmount))
		require.NotNil(t, second.Points[i].MarketValue)
		assert.True(t, first.Points[i].MarketValue.Equal(*second.Points[i].MarketValue))
	}

	// A new ledger write changes the fingerprint and forces a replay
	mustAppend(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-2", ts("2024-03-12", 14), 5, 600))

	third, err := calc.Series("acct-1", "AAPL", "2024-03-12")
	require.NoError(t, err)
	require.Len(t, third.Points, 2)
	assert.Equal(t, "15", third.Points[1].Quantity.String())
	assert.Equal(t, "1600", third.Points[1].InvestedAmount.String())
}
