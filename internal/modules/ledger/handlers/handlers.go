// Package handlers provides HTTP handlers for transaction ledger operations.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/holdings/internal/api"
	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/modules/ledger"
)

// LedgerService is the subset of the ledger service the handlers call
type LedgerService interface {
	Create(ctx context.Context, ownerID string, req ledger.CreateRequest) (*ledger.MutationResult, error)
	GetByID(ctx context.Context, ownerID, id string) (*domain.Transaction, error)
	List(ctx context.Context, ownerID string, f ledger.Filter) (*ledger.Page, error)
	Update(ctx context.Context, ownerID, id string, patch ledger.Patch) (*ledger.MutationResult, error)
	Delete(ctx context.Context, ownerID, id string) (*ledger.MutationResult, error)
}

// Handler handles ledger HTTP requests
type Handler struct {
	service LedgerService
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(
	service LedgerService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// MutationResponse is returned by create, update and delete.
// Degraded is true when the ledger write succeeded but the position update did not.
type MutationResponse struct {
	Transaction   domain.Transaction `json:"transaction"`
	Position      *domain.Position   `json:"position,omitempty"`
	Degraded      bool               `json:"degraded"`
	PositionError string             `json:"position_error,omitempty"`
}

func newMutationResponse(result *ledger.MutationResult) MutationResponse {
	resp := MutationResponse{
		Transaction: result.Transaction,
		Position:    result.Position,
		Degraded:    result.Degraded(),
	}
	if result.PositionErr != nil {
		resp.PositionError = result.PositionErr.Error()
	}
	return resp
}

// HandleCreateTransaction handles POST /api/transactions
func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	var req ledger.CreateRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	result, err := h.service.Create(r.Context(), owner, req)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusCreated, newMutationResponse(result), h.log)
}

// HandleGetTransactions handles GET /api/transactions
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	page, err := h.service.List(r.Context(), owner, filter)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusOK, page, h.log)
}

// HandleGetTransaction handles GET /api/transactions/{id}
func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	tx, err := h.service.GetByID(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusOK, tx, h.log)
}

// HandleUpdateTransaction handles PATCH /api/transactions/{id}
func (h *Handler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	var patch ledger.Patch
	if err := api.DecodeJSON(r, &patch); err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	result, err := h.service.Update(r.Context(), owner, chi.URLParam(r, "id"), patch)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusOK, newMutationResponse(result), h.log)
}

// HandleDeleteTransaction handles DELETE /api/transactions/{id}
func (h *Handler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	result, err := h.service.Delete(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	api.WriteJSON(w, http.StatusOK, newMutationResponse(result), h.log)
}

// parseFilter reads the list filter from the query string.
// Results are newest first unless order=asc.
func parseFilter(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	f := ledger.Filter{
		PortfolioID:      q.Get("portfolio_id"),
		TradingAccountID: q.Get("account_id"),
		AssetID:          q.Get("asset_id"),
		SortBy:           q.Get("sort_by"),
		Tags:             splitList(q.Get("tags")),
	}

	for _, raw := range splitList(q.Get("type")) {
		typ, err := domain.ParseTransactionType(raw)
		if err != nil {
			return f, domain.NewValidationError("type", raw, err.Error())
		}
		f.Types = append(f.Types, typ)
	}

	if raw := q.Get("side"); raw != "" {
		side, err := domain.ParseSide(raw)
		if err != nil {
			return f, domain.NewValidationError("side", raw, err.Error())
		}
		f.Side = side
	}
	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseTransactionStatus(raw)
		if err != nil {
			return f, domain.NewValidationError("status", raw, err.Error())
		}
		f.Status = status
	}

	var err error
	if f.From, err = parseTimeParam(q.Get("from"), "from", false); err != nil {
		return f, err
	}
	if f.To, err = parseTimeParam(q.Get("to"), "to", true); err != nil {
		return f, err
	}
	if f.MinAmount, err = parseDecimalParam(q.Get("min_amount"), "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = parseDecimalParam(q.Get("max_amount"), "max_amount"); err != nil {
		return f, err
	}
	if f.Page, err = parseIntParam(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.Limit, err = parseIntParam(q.Get("limit"), "limit"); err != nil {
		return f, err
	}

	switch strings.ToLower(q.Get("order")) {
	case "", "desc":
		f.SortDesc = true
	case "asc":
		f.SortDesc = false
	default:
		return f, domain.NewValidationError("order", q.Get("order"), "must be asc or desc")
	}

	return f, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseTimeParam accepts RFC3339 or a bare date. A bare "to" date covers the whole day.
func parseTimeParam(raw, field string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, domain.NewValidationError(field, raw, "must be YYYY-MM-DD or RFC3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

func parseDecimalParam(raw, field string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, domain.NewValidationError(field, raw, "must be a number")
	}
	return &d, nil
}

func parseIntParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(field, raw, "must be an integer")
	}
	return n, nil
}
