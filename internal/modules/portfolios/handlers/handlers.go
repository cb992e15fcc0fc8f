// Package handlers provides HTTP handlers for portfolios and trading accounts.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/api"
	"github.com/aristath/holdings/internal/domain"
)

// PortfolioStore is the subset of the portfolio repository the handlers call
type PortfolioStore interface {
	CreatePortfolio(ctx context.Context, ownerID, name string) (*domain.Portfolio, error)
	CreateTradingAccount(ctx context.Context, ownerID, portfolioID, name string) (*domain.TradingAccount, error)
	GetOwned(ctx context.Context, ownerID, portfolioID string) (*domain.Portfolio, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Portfolio, error)
	ListAccounts(ctx context.Context, portfolioID string) ([]domain.TradingAccount, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	store PortfolioStore
	log   zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(store PortfolioStore, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log.With().Str("handler", "portfolios").Logger(),
	}
}

type nameRequest struct {
	Name string `json:"name"`
}

// HandleListPortfolios handles GET /api/portfolios
func (h *Handler) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	portfolios, err := h.store.ListByOwner(r.Context(), owner)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusOK, portfolios, h.log)
}

// HandleCreatePortfolio handles POST /api/portfolios
func (h *Handler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	var req nameRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	p, err := h.store.CreatePortfolio(r.Context(), owner, req.Name)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusCreated, p, h.log)
}

// HandleListAccounts handles GET /api/portfolios/{id}/accounts
func (h *Handler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	portfolioID := chi.URLParam(r, "id")
	if _, err := h.store.GetOwned(r.Context(), owner, portfolioID); err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	accounts, err := h.store.ListAccounts(r.Context(), portfolioID)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusOK, accounts, h.log)
}

// HandleCreateAccount handles POST /api/portfolios/{id}/accounts
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	var req nameRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	account, err := h.store.CreateTradingAccount(r.Context(), owner, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusCreated, account, h.log)
}
