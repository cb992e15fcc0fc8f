// Package handlers provides HTTP handlers for the asset registry.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/api"
	"github.com/aristath/holdings/internal/domain"
)

// AssetStore is the subset of the asset registry the handlers call
type AssetStore interface {
	Create(ctx context.Context, asset domain.Asset) (*domain.Asset, error)
	Get(ctx context.Context, assetID string) (*domain.Asset, error)
	List(ctx context.Context) ([]domain.Asset, error)
}

// Handler handles asset HTTP requests
type Handler struct {
	store AssetStore
	log   zerolog.Logger
}

// NewHandler creates a new asset handler
func NewHandler(store AssetStore, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log.With().Str("handler", "assets").Logger(),
	}
}

// HandleListAssets handles GET /api/assets
func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.List(r.Context())
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}
	api.WriteJSON(w, http.StatusOK, assets, h.log)
}

// HandleGetAsset handles GET /api/assets/{id}
func (h *Handler) HandleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}
	api.WriteJSON(w, http.StatusOK, asset, h.log)
}

// HandleCreateAsset handles POST /api/assets
func (h *Handler) HandleCreateAsset(w http.ResponseWriter, r *http.Request) {
	if _, ok := api.RequireOwner(w, r, h.log); !ok {
		return
	}

	var req domain.Asset
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	asset, err := h.store.Create(r.Context(), req)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}
	api.WriteJSON(w, http.StatusCreated, asset, h.log)
}
