// Package kafka publishes session events to a Kafka topic. Events are
// keyed by session id so all events for one session land on one partition
// in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/parlorhq/parlor/pkg/eventstream"
)

// DefaultTopic is the topic used when none is configured.
const DefaultTopic = "parlor.events"

// messageWriter is the slice of kafka.Writer the publisher depends on.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes events to a Kafka topic.
type Publisher struct {
	writer messageWriter
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers lists the bootstrap broker addresses. Required.
	Brokers []string

	// Topic is the destination topic. Defaults to DefaultTopic if empty.
	Topic string
}

// NewPublisher creates a publisher backed by a kafka.Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers...),
			Topic:    topic,
			Balancer: &kafkago.Hash{},
		},
	}, nil
}

// PublishTurn writes a turn event keyed by session id.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return p.write(ctx, event.SessionID, event)
}

// PublishConsolidation writes a consolidation event keyed by session id.
func (p *Publisher) PublishConsolidation(ctx context.Context, event *eventstream.MemoryConsolidatedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return p.write(ctx, event.SessionID, event)
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) write(ctx context.Context, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}
