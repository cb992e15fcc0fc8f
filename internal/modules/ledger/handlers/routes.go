package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.HandleGetTransactions)
		r.Post("/", h.HandleCreateTransaction)
		r.Get("/{id}", h.HandleGetTransaction)
		r.Patch("/{id}", h.HandleUpdateTransaction)
		r.Delete("/{id}", h.HandleDeleteTransaction)
	})
}
