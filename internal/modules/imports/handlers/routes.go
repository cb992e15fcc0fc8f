package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the import routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/imports", h.HandleImport)
}
