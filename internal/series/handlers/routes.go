package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all series query routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts", h.HandleListAccounts)

	r.Route("/series", func(r chi.Router) {
		r.Get("/{account}", func(w http.ResponseWriter, r *http.Request) {
			account := chi.URLParam(r, "account")
			h.HandleGetAggregate(w, r, account)
		})
		r.Get("/{account}/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			account := chi.URLParam(r, "account")
			ticker := chi.URLParam(r, "ticker")
			h.HandleGetSeries(w, r, account, ticker)
		})
	})
}
