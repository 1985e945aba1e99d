package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// AuthenticationError is returned when the caller's credentials are missing,
// invalid, or contradict each other (token/header tenant mismatch).
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

// RateLimitError is returned when a fixed-window limit is exhausted.
type RateLimitError struct {
	Scope      string // "ip" or "tenant"
	Subject    string
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s %q: %d requests per window, retry after %s",
		e.Scope, e.Subject, e.Limit, e.RetryAfter.Round(time.Second))
}

// QuotaExceededError is returned when an atomic quota admission is rejected.
// The diagnostic values are best-effort reads taken after the rejection.
type QuotaExceededError struct {
	Dimension  QuotaDimension
	Current    int64
	Limit      int64
	Attempted  int64
	Percentage int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: current %d, limit %d, attempted %d (%d%%)",
		e.Dimension, e.Current, e.Limit, e.Attempted, e.Percentage)
}

// ValidationError is returned for malformed payloads and out-of-range deltas.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Msg
}

// UnsupportedOperationError is returned when the requested operation is not in
// the closed set. The raw name is never forwarded to the storage layer.
type UnsupportedOperationError struct {
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %q", e.Operation)
}

// InfrastructureError wraps failures of the durable store or an external
// collaborator. It is distinct from quota and auth rejections.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure failure in %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
