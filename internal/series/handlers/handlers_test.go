package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdworks/basistracker/internal/basis"
	"github.com/tdworks/basistracker/internal/domain"
	"github.com/tdworks/basistracker/internal/ledger"
	"github.com/tdworks/basistracker/internal/series"
	testutil "github.com/tdworks/basistracker/internal/testing"
)

func setupRouter(t *testing.T) (*ledger.Store, *chi.Mux) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	ledgerDB, cleanup := testutil.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	store := ledger.NewStore(ledgerDB.Conn(), log)

	calc := basis.NewCalculator(store, nil, log)
	svc := series.NewService(store, calc, log)
	handler := NewHandler(svc, log)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})

	require.NoError(t, store.UpsertAccount(domain.Account{ID: "acct-1", Label: "IRA"}))

	return store, router
}

func seedBuy(t *testing.T, store *ledger.Store, symbol, id, dayStr string) {
	t.Helper()
	d, err := time.Parse("2006-01-02", dayStr)
	require.NoError(t, err)
	require.NoError(t, store.UpsertTicker("acct-1", symbol))
	_, err = store.AppendTransaction(testutil.NewBuyFixture("acct-1", symbol, id, d.Add(14*time.Hour), 10, 1000))
	require.NoError(t, err)
}

func TestHandleListAccounts(t *testing.T) {
	_, router := setupRouter(t)

	req := httptest.NewRequest("GET", "/api/accounts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
	assert.NotNil(t, response["metadata"])
}

func TestHandleGetSeries(t *testing.T) {
	store, router := setupRouter(t)
	seedBuy(t, store, "AAPL", "tx-1", "2024-03-11")

	req := httptest.NewRequest("GET", "/api/series/acct-1/AAPL?to=2024-03-13", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data series.Series `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "acct-1", response.Data.AccountID)
	assert.Equal(t, "AAPL", response.Data.Symbol)
	require.Len(t, response.Data.Points, 3)
	assert.Equal(t, "2024-03-11", response.Data.Points[0].Day)
}

func TestHandleGetSeries_InvalidDateParam(t *testing.T) {
	store, router := setupRouter(t)
	seedBuy(t, store, "AAPL", "tx-1", "2024-03-11")

	req := httptest.NewRequest("GET", "/api/series/acct-1/AAPL?from=11-03-2024", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetAggregate(t *testing.T) {
	store, router := setupRouter(t)
	seedBuy(t, store, "AAPL", "tx-1", "2024-03-11")
	seedBuy(t, store, "MSFT", "tx-2", "2024-03-11")

	req := httptest.NewRequest("GET", "/api/series/acct-1?to=2024-03-11", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data series.Aggregate `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Data.Points, 1)
	assert.Equal(t, "2000", response.Data.Points[0].InvestedAmount.String())
}
