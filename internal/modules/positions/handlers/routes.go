package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all position routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/positions", h.HandleGetPosition)
	r.Get("/portfolios/{id}/positions", h.HandleGetPortfolioPositions)
	r.Post("/portfolios/{id}/positions/rebuild", h.HandleRebuildPortfolio)
}
