package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all asset routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.HandleListAssets)
		r.Post("/", h.HandleCreateAsset)
		r.Get("/{id}", h.HandleGetAsset)
	})
}
