package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"bilancio/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response body", "error", err)
	}
}

// respondError maps domain errors onto HTTP statuses: validation failures
// are 422, duplicate years 409, missing records 404. Anything else is a 500
// with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr core.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Field: verr.Field})
		return
	}
	var dup core.DuplicateYearError
	if errors.As(err, &dup) {
		respondJSON(w, http.StatusConflict, errorResponse{Error: dup.Error()})
		return
	}
	var nf core.NotFoundError
	if errors.As(err, &nf) {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: nf.Error()})
		return
	}

	slog.ErrorContext(r.Context(), "Request failed",
		"method", r.Method,
		"url", r.URL.Path,
		"error", err)
	respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// decodeJSON reads a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return core.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

// userID extracts the caller identity from the X-User-ID header.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}
