package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios", h.HandleListPortfolios)
	r.Post("/portfolios", h.HandleCreatePortfolio)
	r.Get("/portfolios/{id}/accounts", h.HandleListAccounts)
	r.Post("/portfolios/{id}/accounts", h.HandleCreateAccount)
}
