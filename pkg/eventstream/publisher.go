package eventstream

import "context"

// Publisher publishes session events to an event stream backend.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnCompletedEvent) error
	PublishConsolidation(ctx context.Context, event *MemoryConsolidatedEvent) error
	Close() error
}
