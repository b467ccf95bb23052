// Package handlers provides HTTP handlers for series queries.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tdworks/basistracker/internal/domain"
	"github.com/tdworks/basistracker/internal/series"
)

// Handler handles series HTTP requests
type Handler struct {
	service *series.Service
	log     zerolog.Logger
}

// NewHandler creates a new series handler
func NewHandler(service *series.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "series").Logger(),
	}
}

// HandleListAccounts handles GET /api/accounts
func (h *Handler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"accounts": accounts,
			"count":    len(accounts),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetSeries handles GET /api/series/{account}/{ticker}
func (h *Handler) HandleGetSeries(w http.ResponseWriter, r *http.Request, accountID, symbol string) {
	fromDay, toDay, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	s, err := h.service.GetSeries(accountID, symbol, fromDay, toDay)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Unknown account or ticker", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("account", accountID).Str("symbol", symbol).Msg("Failed to get series")
		http.Error(w, "Failed to get series", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": s,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"points":    len(s.Points),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetAggregate handles GET /api/series/{account}
func (h *Handler) HandleGetAggregate(w http.ResponseWriter, r *http.Request, accountID string) {
	fromDay, toDay, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	agg, err := h.service.GetAggregate(accountID, fromDay, toDay)
	if err != nil {
		h.log.Error().Err(err).Str("account", accountID).Msg("Failed to get aggregate series")
		http.Error(w, "Failed to get aggregate series", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": agg,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"points":    len(agg.Points),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// parseRange reads the optional from/to query parameters (YYYY-MM-DD).
func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (fromDay, toDay string, ok bool) {
	fromDay = r.URL.Query().Get("from")
	toDay = r.URL.Query().Get("to")

	if fromDay != "" {
		if _, err := domain.ParseDay(fromDay); err != nil {
			http.Error(w, "Invalid 'from' date, expected YYYY-MM-DD", http.StatusBadRequest)
			return "", "", false
		}
	}
	if toDay != "" {
		if _, err := domain.ParseDay(toDay); err != nil {
			http.Error(w, "Invalid 'to' date, expected YYYY-MM-DD", http.StatusBadRequest)
			return "", "", false
		}
	}

	return fromDay, toDay, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
