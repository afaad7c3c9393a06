package kafka_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/parlorhq/parlor/pkg/eventstream"
	"github.com/parlorhq/parlor/pkg/eventstream/kafka"
)

type recordingWriter struct {
	messages []kafkago.Message
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer *recordingWriter
		pub    *kafka.Publisher
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		writer = &recordingWriter{}
		pub = kafka.NewPublisherWithWriter(writer)
	})

	Describe("NewPublisher", func() {
		It("requires at least one broker", func() {
			_, err := kafka.NewPublisher(kafka.Config{})
			Expect(err).To(HaveOccurred())
		})
	})

	It("returns ErrNilEvent for nil events", func() {
		Expect(pub.PublishTurn(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(pub.PublishConsolidation(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("keys turn events by session id", func() {
		event := &eventstream.TurnCompletedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeTurnCompleted,
			SessionID:     "abc123",
			Model:         "llama3.2",
		}

		Expect(pub.PublishTurn(ctx, event)).To(Succeed())
		Expect(writer.messages).To(HaveLen(1))
		Expect(string(writer.messages[0].Key)).To(Equal("abc123"))

		var got map[string]any
		Expect(json.Unmarshal(writer.messages[0].Value, &got)).To(Succeed())
		Expect(got["event_type"]).To(Equal(eventstream.EventTypeTurnCompleted))
		Expect(got["session_id"]).To(Equal("abc123"))
	})

	It("publishes consolidation events", func() {
		event := &eventstream.MemoryConsolidatedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeMemoryConsolidated,
			SessionID:     "abc123",
			Steps:         []string{"summarize", "extract", "prune"},
		}

		Expect(pub.PublishConsolidation(ctx, event)).To(Succeed())
		Expect(writer.messages).To(HaveLen(1))

		var got map[string]any
		Expect(json.Unmarshal(writer.messages[0].Value, &got)).To(Succeed())
		Expect(got["steps"]).To(HaveLen(3))
	})

	It("closes the underlying writer", func() {
		Expect(pub.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})
