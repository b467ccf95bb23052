package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdworks/basistracker/internal/clients/brokerage"
	"github.com/tdworks/basistracker/internal/ledger"
	syncengine "github.com/tdworks/basistracker/internal/sync"
	testutil "github.com/tdworks/basistracker/internal/testing"
)

// stalledAPI keeps FetchAccounts pending until released, so a test can
// observe the trigger endpoint responding while a run is still going.
type stalledAPI struct {
	release chan struct{}
}

func (a *stalledAPI) FetchAccounts(ctx context.Context) ([]brokerage.RawAccount, error) {
	select {
	case <-a.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *stalledAPI) FetchTransactions(ctx context.Context, accountID string, since time.Time) ([]brokerage.RawTransaction, error) {
	return nil, nil
}

func (a *stalledAPI) FetchDailyCloses(ctx context.Context, symbol, fromDay, toDay string) ([]brokerage.DailyClose, error) {
	return nil, nil
}

func setupTriggerHandlers(t *testing.T, api brokerage.API) *SystemHandlers {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	ledgerDB, cleanup := testutil.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	svc := syncengine.New(syncengine.Config{
		Store: ledger.NewStore(ledgerDB.Conn(), log),
		API:   api,
		Retry: syncengine.RetryConfig{Attempts: 1, BaseDelay: time.Millisecond},
		Log:   log,
	})

	return NewSystemHandlers(log, ledgerDB, ledgerDB, svc)
}

func TestHandleTriggerSync_NotConfigured(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	h := NewSystemHandlers(log, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.HandleTriggerSync(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleTriggerSync_RespondsBeforeRunFinishes(t *testing.T) {
	api := &stalledAPI{release: make(chan struct{})}
	defer close(api.release)
	h := setupTriggerHandlers(t, api)

	rec := httptest.NewRecorder()
	h.HandleTriggerSync(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	// The run is still blocked on the broker, yet the client already has
	// its answer
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted")
}

func TestHandleTriggerSync_RejectsConcurrentRuns(t *testing.T) {
	api := &stalledAPI{release: make(chan struct{})}
	defer close(api.release)
	h := setupTriggerHandlers(t, api)

	first := httptest.NewRecorder()
	h.HandleTriggerSync(first, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	require.Equal(t, http.StatusAccepted, first.Code)

	second := httptest.NewRecorder()
	h.HandleTriggerSync(second, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	assert.Equal(t, http.StatusConflict, second.Code)
}
