// Package store persists sessions and cached artifacts in a local SQLite
// database using a namespaced key/value layout.
package store

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates no record exists under the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrCorrupt indicates a stored record failed to decode or validate.
	// The record is surfaced rather than silently dropped so callers can
	// decide whether to repair or discard it.
	ErrCorrupt = errors.New("corrupt record")
)

// isBusy reports whether err is a SQLite lock contention error worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// retryBusy runs fn, retrying with exponential backoff while SQLite reports
// lock contention. Non-busy errors are returned immediately.
func retryBusy(op string, fn func() error) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("database busy, retrying", "op", op, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return err
}
