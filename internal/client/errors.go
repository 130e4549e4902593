package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for API operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the resource does not exist on the backend.
	// Not retryable; the caller decides whether to recreate or give up.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates the backend rejected the credentials.
	// Retrying without a new token cannot succeed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict indicates a resource with the same ID already exists.
	// Callers typically fall back to an update.
	ErrConflict = errors.New("resource already exists")

	// ErrUnavailable indicates a server-side failure. The operation can be
	// retried on the next sync trigger.
	ErrUnavailable = errors.New("server unavailable")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server error: %d", e.Status)
	}
	return fmt.Sprintf("server error: %d - %s", e.Status, e.Body)
}

// Unwrap maps well-known statuses to sentinel errors so callers can use
// errors.Is without touching status codes.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusConflict:
		return ErrConflict
	}
	if e.Status >= 500 {
		return ErrUnavailable
	}
	return nil
}

// IsTransient reports whether err is worth retrying on a later sync
// trigger. Connectivity failures, timeouts, and server-side errors are
// transient; missing resources, rejected credentials, and deliberate
// cancellation are terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusRequestTimeout ||
			apiErr.Status == http.StatusTooManyRequests ||
			apiErr.Status >= 500
	}

	// No HTTP status means the request never completed: DNS, dial, reset,
	// or client-side timeout.
	return true
}
