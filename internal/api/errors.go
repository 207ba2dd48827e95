// Package api provides the HTTP handlers of the dashboard API and its
// standard error envelope.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes returned in the envelope.
const (
	ErrCodeValidation       = "validation_error"
	ErrCodeAuthFailed       = "auth_failed"
	ErrCodeNotFound         = "not_found"
	ErrCodeProjectNotFound  = "project_not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnsupportedType  = "unsupported_format"
	ErrCodeNotConfigured    = "not_configured"
	ErrCodeArchiveFailed    = "archive_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// ErrorResponse represents the standard error response format:
// {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Record the code on the request context first so the logging middleware
// reports it:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeProjectNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeProjectNotFound, "Project not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	data, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeUnsupportedType:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound, ErrCodeProjectNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeNotConfigured:
		return http.StatusNotImplemented
	case ErrCodeArchiveFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v with status. Encoding failures after the header is
// written can only be logged.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
