// Package http exposes the four core components over a thin REST surface.
// It holds no business logic: every handler validates nothing beyond what
// its component already validates, and exists only to decode a request,
// call the component, and encode its result or error.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
	"github.com/google/uuid"
)

const correlationIDHeader = "X-Correlation-ID"

// correlationID returns the caller-supplied correlation ID, or mints one if
// the request didn't carry one.
func correlationID(r *http.Request) string {
	if id := r.Header.Get(correlationIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

// handleError maps a domain error to the HTTP response describing it.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var statusCode int
	var errorCode string

	switch {
	case domain.IsValidationError(err):
		statusCode, errorCode = http.StatusBadRequest, "VALIDATION_ERROR"
	case domain.IsNotFoundError(err):
		statusCode, errorCode = http.StatusNotFound, "NOT_FOUND"
	case domain.IsUnauthorizedError(err):
		statusCode, errorCode = http.StatusUnauthorized, "UNAUTHORIZED"
	case domain.IsForbiddenError(err):
		statusCode, errorCode = http.StatusForbidden, "FORBIDDEN"
	case domain.IsConflictError(err):
		statusCode, errorCode = http.StatusConflict, "CONFLICT"
	case domain.IsRateLimitError(err):
		statusCode, errorCode = http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"
	case domain.IsOverloadedError(err):
		statusCode, errorCode = http.StatusServiceUnavailable, "OVERLOADED"
	case domain.IsTimeoutError(err):
		statusCode, errorCode = http.StatusRequestTimeout, "TIMEOUT"
	case domain.IsAbortedError(err):
		statusCode, errorCode = http.StatusConflict, "ABORTED"
	case domain.IsDependencyError(err):
		statusCode, errorCode = http.StatusBadGateway, "DEPENDENCY_ERROR"
	default:
		statusCode, errorCode = http.StatusInternalServerError, "INTERNAL_ERROR"
	}

	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		message = "an internal error occurred"
	}

	writeJSONResponse(w, r, statusCode, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    errorCode,
			"message": message,
		},
	})
}

// writeJSONResponse writes data as a JSON body with the correlation ID
// echoed back and standard security headers set.
func writeJSONResponse(w http.ResponseWriter, r *http.Request, statusCode int, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["correlation_id"] = correlationID(r)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-XSS-Protection", "1; mode=block")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewValidationError("invalid request body")
	}
	return nil
}
