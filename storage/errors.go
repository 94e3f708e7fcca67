package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrPermanent marks a stored value that could not be decoded. The spec
// treats this the same as absent: the key is logged and repaired on the
// next write, never retried against a backend that will keep failing.
var ErrPermanent = errors.New("storage: permanent decode failure")

// ErrUnhealthy is the sentinel wrapped by HealthError, matching the
// teacher's backends/health.go convention.
var ErrUnhealthy = errors.New("storage: backend unhealthy")

// HealthError wraps a connectivity/availability failure with the logical
// operation that triggered it (e.g. "redis:EvalSha", "postgres:Ping").
// Callers distinguish this from operational errors (malformed data,
// constraint violations) via IsHealthError, and the service maps a
// HealthError to StorageTransient.
type HealthError struct {
	Op    string
	Cause error
}

func (e *HealthError) Error() string {
	if e == nil {
		return ErrUnhealthy.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", ErrUnhealthy, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %v", ErrUnhealthy, e.Cause)
}

func (e *HealthError) Unwrap() error { return e.Cause }

func (e *HealthError) Is(target error) bool { return target == ErrUnhealthy }

// NewHealthError wraps cause as a connectivity failure tagged with op.
func NewHealthError(op string, cause error) error {
	if cause == nil {
		return ErrUnhealthy
	}
	return &HealthError{Op: op, Cause: cause}
}

// IsHealthError reports whether err (directly or wrapped) indicates the
// backend itself is unreachable, as opposed to an operational error.
func IsHealthError(err error) bool {
	if errors.Is(err, ErrUnhealthy) {
		return true
	}
	var he *HealthError
	return errors.As(err, &he)
}

// MaybeConnError reclassifies err as a HealthError if its message matches
// one of patterns, or if it's a context deadline/cancellation — both
// treated as connectivity problems rather than operational ones.
func MaybeConnError(op string, err error, patterns []string) error {
	if err == nil {
		return nil
	}
	low := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(low, p) {
			return NewHealthError(op, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewHealthError(op, err)
	}
	return err
}
