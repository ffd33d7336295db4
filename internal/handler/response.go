package handler

// RESPONSE HELPERS:
// Every error response from the API has the same shape:
//
//	{"error": "code cannot be empty", "code": "invalid_input", "field": "code"}
//
// "error" is safe to show a student; "code" is for the frontend to switch on.
// Handled execution outcomes (compile errors, timeouts, unknown languages)
// are NOT errors at this layer; they are 200 responses with an output.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Shree113/newcd/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; anything set afterwards is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// The status is already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// The mapping lives here, not in the service: the CLI reports the same
// errors without any status codes at all.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)

	var appErr *apperror.AppError
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		writeJSON(w, status, ErrorResponse{
			Error: appErr.Message,
			Code:  code,
			Field: appErr.Field,
		})
		return
	}

	// NEVER expose internal error details: the raw error may contain
	// absolute workspace paths or SQL.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "An internal error occurred",
		Code:  "internal_error",
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperror.ErrUnsupportedLanguage):
		return http.StatusBadRequest, "unsupported_language"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrBusy):
		return http.StatusServiceUnavailable, "busy"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
