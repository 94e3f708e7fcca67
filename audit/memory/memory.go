// Package memory implements the audit port (C3) in process memory, used
// for tests and single-instance deployments that don't need a durable
// audit trail.
package memory

import (
	"context"
	"sync"

	"github.com/pallabcodes/distributed-ratelimiter/audit"
)

// Publisher records every published event in memory, in publish order.
type Publisher struct {
	mu     sync.Mutex
	events []audit.Event
}

// New creates an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish implements audit.Publisher.
func (p *Publisher) Publish(ctx context.Context, event audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of every event published so far, for test
// assertions.
func (p *Publisher) Events() []audit.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audit.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Close implements audit.Publisher.
func (p *Publisher) Close() error { return nil }
