// Package audit defines the audit-event port (C3): a record of every
// Check decision, published at-least-once for downstream consumers
// (billing, abuse detection, compliance).
package audit

import (
	"context"
	"time"
)

// Event is one Check decision, independent of the transport that served
// the request.
type Event struct {
	EventID    string
	ClientID   string
	Resource   string
	Allowed    bool
	Cost       float64
	Remaining  int
	OccurredAt time.Time
}

// Publisher is the port every audit backend implements. Publish is
// expected to be fire-and-forget from the caller's perspective: it may
// buffer internally and return before the event is durably stored, but
// must not silently drop an event without the caller being able to
// observe backpressure via a non-nil error.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
