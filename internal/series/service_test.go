package series

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdworks/basistracker/internal/basis"
	"github.com/tdworks/basistracker/internal/domain"
	"github.com/tdworks/basistracker/internal/ledger"
	testutil "github.com/tdworks/basistracker/internal/testing"
)

func setupService(t *testing.T) (*ledger.Store, *Service) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	ledgerDB, cleanup := testutil.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	store := ledger.NewStore(ledgerDB.Conn(), log)

	calc := basis.NewCalculator(store, nil, log)
	svc := NewService(store, calc, log)

	require.NoError(t, store.UpsertAccount(domain.Account{ID: "acct-1"}))

	return store, svc
}

func seed(t *testing.T, store *ledger.Store, tx domain.Transaction) {
	t.Helper()
	require.NoError(t, store.UpsertTicker(tx.AccountID, tx.Symbol))
	_, err := store.AppendTransaction(tx)
	require.NoError(t, err)
}

func day(s string, hour int) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d.Add(time.Duration(hour) * time.Hour)
}

func TestGetSeries_CompleteRange(t *testing.T) {
	store, svc := setupService(t)

	seed(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", day("2024-03-11", 14), 10, 1000))

	s, err := svc.GetSeries("acct-1", "AAPL", "", "2024-03-14")
	require.NoError(t, err)
	require.Len(t, s.Points, 4)
	for i, want := range []string{"2024-03-11", "2024-03-12", "2024-03-13", "2024-03-14"} {
		assert.Equal(t, want, s.Points[i].Day)
	}
}

func TestGetSeries_FromBoundTrimsEarlierDays(t *testing.T) {
	store, svc := setupService(t)

	seed(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", day("2024-03-11", 14), 10, 1000))

	s, err := svc.GetSeries("acct-1", "AAPL", "2024-03-13", "2024-03-14")
	require.NoError(t, err)
	require.Len(t, s.Points, 2)
	assert.Equal(t, "2024-03-13", s.Points[0].Day)

	// State carried into the window reflects the earlier history
	assert.Equal(t, "10", s.Points[0].Quantity.String())
	assert.Equal(t, "1000", s.Points[0].InvestedAmount.String())
}

func TestGetAggregate_SumsAcrossTickers(t *testing.T) {
	store, svc := setupService(t)

	seed(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", day("2024-03-11", 14), 10, 1000))
	seed(t, store, testutil.NewBuyFixture("acct-1", "MSFT", "tx-2", day("2024-03-11", 15), 5, 2000))

	require.NoError(t, store.UpsertPriceSnapshot(testutil.NewSnapshotFixture("acct-1", "AAPL", "2024-03-11", 100)))
	require.NoError(t, store.UpsertPriceSnapshot(testutil.NewSnapshotFixture("acct-1", "MSFT", "2024-03-11", 400)))

	agg, err := svc.GetAggregate("acct-1", "", "2024-03-11")
	require.NoError(t, err)
	require.Len(t, agg.Points, 1)
	assert.Equal(t, "3000", agg.Points[0].InvestedAmount.String())
	require.NotNil(t, agg.Points[0].MarketValue)
	assert.Equal(t, "3000", agg.Points[0].MarketValue.String())
}

func TestGetAggregate_GapTickerExcludedFromDaySum(t *testing.T) {
	store, svc := setupService(t)

	seed(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", day("2024-03-11", 14), 10, 1000))
	seed(t, store, testutil.NewBuyFixture("acct-1", "MSFT", "tx-2", day("2024-03-11", 15), 5, 2000))

	// Only AAPL has a price; MSFT is a gap on this day
	require.NoError(t, store.UpsertPriceSnapshot(testutil.NewSnapshotFixture("acct-1", "AAPL", "2024-03-11", 100)))

	agg, err := svc.GetAggregate("acct-1", "", "2024-03-11")
	require.NoError(t, err)
	require.Len(t, agg.Points, 1)

	// Invested sums both tickers; market value excludes the gap ticker
	// instead of spreading the gap to the whole day
	assert.Equal(t, "3000", agg.Points[0].InvestedAmount.String())
	require.NotNil(t, agg.Points[0].MarketValue)
	assert.Equal(t, "1000", agg.Points[0].MarketValue.String())
}

func TestGetAggregate_AllTickersGapMeansNilMarketValue(t *testing.T) {
	store, svc := setupService(t)

	seed(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", day("2024-03-11", 14), 10, 1000))

	agg, err := svc.GetAggregate("acct-1", "", "2024-03-11")
	require.NoError(t, err)
	require.Len(t, agg.Points, 1)
	assert.Nil(t, agg.Points[0].MarketValue)
}

func TestGetAggregate_TickersStartingOnDifferentDays(t *testing.T) {
	store, svc := setupService(t)

	seed(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", day("2024-03-11", 14), 10, 1000))
	seed(t, store, testutil.NewBuyFixture("acct-1", "MSFT", "tx-2", day("2024-03-13", 15), 5, 2000))

	agg, err := svc.GetAggregate("acct-1", "", "2024-03-13")
	require.NoError(t, err)
	require.Len(t, agg.Points, 3)

	assert.Equal(t, "1000", agg.Points[0].InvestedAmount.String())
	assert.Equal(t, "1000", agg.Points[1].InvestedAmount.String())
	assert.Equal(t, "3000", agg.Points[2].InvestedAmount.String())
}

func TestGetAggregate_CashTickerExcluded(t *testing.T) {
	store, svc := setupService(t)

	seed(t, store, testutil.NewBuyFixture("acct-1", "AAPL", "tx-1", day("2024-03-11", 14), 10, 1000))

	deposit := domain.Transaction{
		ExternalID: "tx-cash",
		AccountID:  "acct-1",
		Symbol:     domain.CashSymbol,
		Timestamp:  day("2024-03-11", 9),
		Kind:       domain.TxTransferIn,
		CashAmount: decimal.NewFromInt(5000),
	}
	seed(t, store, deposit)

	agg, err := svc.GetAggregate("acct-1", "", "2024-03-11")
	require.NoError(t, err)
	require.Len(t, agg.Points, 1)
	assert.Equal(t, "1000", agg.Points[0].InvestedAmount.String())
}

func TestGetAggregate_EmptyAccount(t *testing.T) {
	_, svc := setupService(t)

	agg, err := svc.GetAggregate("acct-1", "", "2024-03-11")
	require.NoError(t, err)
	assert.Empty(t, agg.Points)
}

func TestListAccounts(t *testing.T) {
	store, svc := setupService(t)
	require.NoError(t, store.UpsertAccount(domain.Account{ID: "acct-2", Label: "Roth"}))

	accounts, err := svc.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}
