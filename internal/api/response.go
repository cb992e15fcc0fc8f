// Package api holds the JSON response and request helpers shared by the module handlers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/holdings/internal/domain"
)

// OwnerHeader carries the authenticated owner id set by the upstream auth layer
const OwnerHeader = "X-Owner-ID"

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Field   string      `json:"field,omitempty"`
	Value   interface{} `json:"value,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// OwnerID returns the caller's owner id, or "" when the header is missing
func OwnerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(OwnerHeader))
}

// RequireOwner writes a 401 and returns false when the request has no owner id
func RequireOwner(w http.ResponseWriter, r *http.Request, log zerolog.Logger) (string, bool) {
	owner := OwnerID(r)
	if owner == "" {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing " + OwnerHeader + " header"}, log)
		return "", false
	}
	return owner, true
}

// WriteJSON encodes data with the given status
func WriteJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError maps domain errors to status codes: validation 400, not found 404, everything else 500
func WriteError(w http.ResponseWriter, err error, log zerolog.Logger) {
	var validationErr *domain.ValidationError
	var notFoundErr *domain.NotFoundError
	var consistencyErr *domain.ConsistencyError

	switch {
	case errors.As(err, &validationErr):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: validationErr.Error(),
			Field: validationErr.Field,
			Value: validationErr.Value,
		}, log)
	case errors.As(err, &notFoundErr):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: notFoundErr.Error()}, log)
	case errors.As(err, &consistencyErr):
		log.Error().Err(err).Msg("Ledger consistency check failed")
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: consistencyErr.Error()}, log)
	default:
		log.Error().Err(err).Msg("Request failed")
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"}, log)
	}
}

// WriteBadRequest writes a 400 with a plain message
func WriteBadRequest(w http.ResponseWriter, message string, log zerolog.Logger) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: message}, log)
}

// DecodeJSON decodes a request body, rejecting unknown fields
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("body", nil, "invalid JSON body: "+err.Error())
	}
	return nil
}
