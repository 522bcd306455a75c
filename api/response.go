package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coachkit/coachd/internal/coach"
	"github.com/coachkit/coachd/internal/embed"
	"github.com/coachkit/coachd/internal/knowledge"
	"github.com/coachkit/coachd/internal/log"
)

// writeJSON writes a JSON response with the given status code.
// Note: If encoding fails after WriteHeader is called, there's no way to
// notify the client since the status code is already sent. The error is
// logged for debugging but doesn't affect the response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeDomainError maps domain errors onto HTTP statuses. Unknown errors are
// logged and reported as 500 without leaking internals.
func writeDomainError(w http.ResponseWriter, logger log.Logger, err error) {
	switch {
	case errors.Is(err, knowledge.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", "")
	case errors.Is(err, knowledge.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access denied", "")
	case errors.Is(err, knowledge.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "empty content", "lesson content is required")
	case errors.Is(err, coach.ErrInsufficientMaterial):
		writeError(w, http.StatusUnprocessableEntity, "insufficient material",
			"the stored lessons do not cover this topic well enough")
	case errors.Is(err, embed.ErrUnavailable), errors.Is(err, coach.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "upstream provider unavailable", "")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", "")
	}
}
