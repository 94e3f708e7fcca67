// Package kafka implements the audit port (C3) against a Kafka-compatible
// broker using franz-go. Delivery is at-least-once: a consumer must
// dedupe by EventID, since a retry after a timed-out ack can duplicate a
// record that actually landed.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/pallabcodes/distributed-ratelimiter/audit"
)

// DefaultTopic is used when Config.Topic is empty, matching spec.md §6's
// audit topic name.
const DefaultTopic = "rate-limit.audit"

// Config configures the Kafka audit publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// Producer publishes audit.Events to Kafka, keyed by ClientID so that all
// events for one client land on the same partition and stay ordered.
type Producer struct {
	client *kgo.Client
	topic  string
}

// New constructs a Producer with the given seed brokers.
func New(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no seed brokers provided")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequestRetries(5),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: new client: %w", err)
	}

	return &Producer{client: client, topic: topic}, nil
}

type wireEvent struct {
	EventID    string  `json:"event_id"`
	ClientID   string  `json:"client_id"`
	Resource   string  `json:"resource"`
	Allowed    bool    `json:"allowed"`
	Cost       float64 `json:"cost"`
	Remaining  int     `json:"remaining"`
	OccurredAt int64   `json:"occurred_at_unix_ms"`
}

// Publish implements audit.Publisher. It is fire-and-forget from the
// service's perspective: the record is handed to the client's internal
// batching and this call returns once the broker has acknowledged it or
// the context expires, whichever comes first.
func (p *Producer) Publish(ctx context.Context, event audit.Event) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	b, err := json.Marshal(wireEvent{
		EventID:    event.EventID,
		ClientID:   event.ClientID,
		Resource:   event.Resource,
		Allowed:    event.Allowed,
		Cost:       event.Cost,
		Remaining:  event.Remaining,
		OccurredAt: event.OccurredAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ClientID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		slog.Error("audit publish failed", slog.String("event_id", event.EventID), slog.Any("error", err))
		return fmt.Errorf("kafka: produce: %w", err)
	}
	return nil
}

// Close implements audit.Publisher.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
