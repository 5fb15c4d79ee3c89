// Package handlers provides HTTP request handlers for the portwarden API.
// This file contains utilities shared across the handlers.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/metrics"
)

// ContextKey represents a context key type.
type ContextKey string

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// getRequestIDFromContext extracts the request ID from context.
func getRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKey("request_id")).(string); ok {
		return requestID
	}
	return "unknown"
}

// getQueryParamInt extracts an integer query parameter with a default.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	if value := r.URL.Query().Get(key); value != "" {
		return strconv.Atoi(value)
	}
	return defaultValue, nil
}

// extractHostFromPath extracts the {host} path variable.
func extractHostFromPath(r *http.Request) (string, error) {
	vars := mux.Vars(r)
	host, exists := vars["host"]
	if !exists || strings.TrimSpace(host) == "" {
		return "", fmt.Errorf("host not provided")
	}
	return host, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response",
			"request_id", getRequestIDFromContext(r.Context()),
			"error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: getRequestIDFromContext(r.Context()),
	}

	writeJSON(w, r, statusCode, response)
}

// writeMonitorError maps a monitor error to an HTTP status.
func writeMonitorError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.IsCode(err, errors.CodeAlreadyMonitored):
		writeError(w, r, http.StatusConflict, err)
	case errors.IsCode(err, errors.CodeNotMonitored):
		writeError(w, r, http.StatusNotFound, err)
	case errors.IsCode(err, errors.CodeTargetInvalid), errors.IsCode(err, errors.CodeValidation):
		writeError(w, r, http.StatusBadRequest, err)
	default:
		writeError(w, r, http.StatusInternalServerError, err)
	}
}

// writeStoreError maps a database error to an HTTP status.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, err)
	case errors.IsCode(err, errors.CodeValidation):
		writeError(w, r, http.StatusBadRequest, err)
	default:
		writeError(w, r, http.StatusInternalServerError, err)
	}
}

// parseJSON parses a JSON request body with size and strictness limits.
func parseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is empty")
	}

	const maxRequestSize = 1 << 20
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestSize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		if err.Error() == "http: request body too large" {
			return fmt.Errorf("request body too large (max 1MB)")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// recordMetric records a handler operation counter.
func recordMetric(registry metrics.MetricsRegistry, name string, labels map[string]string) {
	if registry != nil {
		registry.Counter(name, labels)
	}
}
