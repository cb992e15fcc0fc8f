// Package handlers provides the HTTP handler for batch imports.
package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/api"
	"github.com/aristath/holdings/internal/modules/imports"
)

// ImportService runs a batch import
type ImportService interface {
	Import(ctx context.Context, ic imports.Context, rows []imports.Row) (*imports.Result, error)
}

// Handler handles import HTTP requests
type Handler struct {
	service ImportService
	log     zerolog.Logger
}

// NewHandler creates a new import handler
func NewHandler(service ImportService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "imports").Logger(),
	}
}

// ImportRequest is the body of POST /api/imports
type ImportRequest struct {
	imports.Context
	Rows []imports.Row `json:"rows"`
}

// HandleImport handles POST /api/imports.
// A committed batch answers 201, row violations 400 and a failed commit 500;
// all three carry the import result as the body.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.RequireOwner(w, r, h.log)
	if !ok {
		return
	}

	var req ImportRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, err, h.log)
		return
	}
	req.OwnerID = owner

	result, err := h.service.Import(r.Context(), req.Context, req.Rows)
	if err != nil {
		api.WriteError(w, err, h.log)
		return
	}

	status := http.StatusCreated
	switch {
	case result.IsSystemFailure():
		status = http.StatusInternalServerError
	case !result.Success:
		status = http.StatusBadRequest
	}

	api.WriteJSON(w, status, result, h.log)
}
