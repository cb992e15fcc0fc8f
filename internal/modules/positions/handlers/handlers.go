// Package handlers provides HTTP handlers for position reads and rebuilds.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/api"
	"github.com/aristath/holdings/internal/domain"
)

// PositionService is the subset of the position service the handlers call
type PositionService interface {
	Get(ctx context.Context, key domain.PositionKey) (*domain.Position, error)
	GetPortfolioPositions(ctx context.Context, portfolioID string) ([]domain.Position, error)
	RebuildPortfolio(ctx context.Context, portfolioID string) ([]domain.Position, error)
}

// PortfolioOwnership resolves a portfolio for its owner
type PortfolioOwnership interface {
	GetOwned(ctx context.Context, ownerID, portfolioID string) (*domain.Portfolio, error)
}

// Handler handles position HTTP requests
type Handler struct {
	service    PositionService
	portfolios PortfolioOwnership
	log        zerolog.Logger
}

// NewHandler creates a new position handler
func NewHandler(service PositionService, portfolios PortfolioOwnership, log zerolog.Logger) *Handler {
	return &Handler{
		service:    service,
		portfolios: portfolios,
		log:        log.With().Str("handler", "positions").Logger(),
	}
}

// HandleGetPosition handles GET /api/positions?portfolio_id=&account_id=&asset_id=
func (h *Handler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	q := r.URL.Query()
	key := domain.PositionKey{
		PortfolioID:      q.Get("portfolio_id"),
		TradingAccountID: q.Get("account_id"),
		AssetID:          q.Get("asset_id"),
	}
	required := []struct{ field, value string }{
		{"portfolio_id", key.PortfolioID},
		{"account_id", key.TradingAccountID},
		{"asset_id", key.AssetID},
	}
	for _, p := range required {
		if p.value == "" {
			api.WriteError(w, domain.NewValidationError(p.field, p.value, "is required"), h.log)
			return
		}
	}

	if _, err := h.portfolios.GetOwned(r.Context(), owner, key.PortfolioID); err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	pos, err := h.service.Get(r.Context(), key)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}
	if pos == nil {
		api.WriteError(w, domain.NewNotFoundError("position", key.String()), h.log)
		return
	}

	api.WriteJSON(w, http.StatusOK, pos, h.log)
}

// HandleGetPortfolioPositions handles GET /api/portfolios/{id}/positions
func (h *Handler) HandleGetPortfolioPositions(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}

	positions, err := h.service.GetPortfolioPositions(r.Context(), portfolioID)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"positions":    positions,
		"count":        len(positions),
	}, h.log)
}

// HandleRebuildPortfolio handles POST /api/portfolios/{id}/positions/rebuild
func (h *Handler) HandleRebuildPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.ownedPortfolio(w, r)
	if !ok {
		return
	}

	positions, err := h.service.RebuildPortfolio(r.Context(), portfolioID)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	h.log.Info().Str("portfolio_id", portfolioID).Int("positions", len(positions)).Msg("Positions rebuilt on request")

	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"positions":    positions,
		"count":        len(positions),
	}, h.log)
}

func (h *Handler) ownedPortfolio(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return "", false
	}

	portfolioID := chi.URLParam(r, "id")
	if _, err := h.portfolios.GetOwned(r.Context(), owner, portfolioID); err != nil {
		api.WriteError(w, err, h.log)
		return "", false
	}
	return portfolioID, true
}
