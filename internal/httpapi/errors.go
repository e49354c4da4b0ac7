package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"captiond/internal/captioner"
	"captiond/internal/fetch"
	"captiond/internal/imageio"
	"captiond/internal/resolver"
	"captiond/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps service errors onto HTTP status codes. Anything that keeps
// the model from being available is 503 so load balancers retry elsewhere.
func statusFor(err error) int {
	switch {
	case errors.Is(err, imageio.ErrInvalidInput):
		return http.StatusBadRequest
	case captioner.IsTooBusy(err):
		return http.StatusTooManyRequests
	case errors.Is(err, resolver.ErrModelNotFound),
		errors.Is(err, resolver.ErrAmbiguousModel),
		errors.Is(err, fetch.ErrInvalidURI),
		errors.Is(err, fetch.ErrNotFound),
		errors.Is(err, fetch.ErrCredentialsMissing),
		errors.Is(err, captioner.ErrModelLoad),
		errors.Is(err, captioner.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client disconnects never reach here; only server shutdown does.
		return http.StatusServiceUnavailable
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
