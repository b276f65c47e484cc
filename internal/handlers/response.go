package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"drafthub/internal/contextutil"
	"drafthub/internal/publish"
)

// maxBodyBytes bounds request payloads; document bodies are the largest input.
const maxBodyBytes = 10 << 20

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, statusCode int, message string) {
	writeJSON(ctx, w, statusCode, ErrorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// documentOrNil treats an absent or JSON null body as "not supplied".
func documentOrNil(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return raw
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *publish.ValidationError
	switch {
	case errors.As(err, &validationErr):
		logger.WarnContext(ctx, "invalid request", "field", validationErr.Field, "error", err)
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: validationErr.Error(), Field: validationErr.Field})
	case errors.Is(err, publish.ErrUnauthorized):
		writeError(ctx, w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, publish.ErrForbidden):
		logger.WarnContext(ctx, "forbidden", "error", err)
		writeError(ctx, w, http.StatusForbidden, "Not allowed to post in this group")
	case errors.Is(err, publish.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "Resource not found")
	default:
		logger.ErrorContext(ctx, "service error", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, defaultMsg)
	}
}
