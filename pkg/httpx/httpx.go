// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// Error codes that are not statement error kinds.
const (
	CodeNotFound         = "not_found"
	CodeQueueFull        = "queue_full"
	CodeRateLimited      = "rate_limited"
	CodeUnsupportedMedia = "unsupported_media_type"
	CodeInternal         = "internal_error"
)

// ErrorBody is the body of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("failed to encode response", slog.Any("error", err))
	}
}

// WriteError writes an ErrorBody with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: message})
}

// StatusFor maps a pipeline error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	if errors.Is(err, statement.ErrUnsupportedMedia) {
		return http.StatusUnsupportedMediaType, CodeUnsupportedMedia
	}

	kind := statement.KindOf(err)
	switch kind {
	case statement.KindInvalidInput:
		return http.StatusBadRequest, kind
	case statement.KindAuthentication:
		return http.StatusUnauthorized, kind
	case statement.KindExtraction, statement.KindSchema:
		return http.StatusUnprocessableEntity, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

// WriteErr maps err and writes it. Internal errors are logged and their
// detail is withheld from the client.
func WriteErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := StatusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
		message = "internal error while processing the statement"
	}
	WriteError(w, status, code, message)
}
