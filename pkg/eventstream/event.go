package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a conversation turn is persisted.
	EventTypeTurnCompleted = "parlor.turn.completed"

	// EventTypeMemoryConsolidated is emitted after a session's memory has
	// been consolidated (summarized, extracted, and pruned).
	EventTypeMemoryConsolidated = "parlor.memory.consolidated"
)

// TurnCompletedEvent is a transport-neutral event payload for a completed
// chat turn.
type TurnCompletedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	SessionID     string    `json:"session_id"`
	Model         string    `json:"model"`
	PromptChars   int       `json:"prompt_chars"`
	ReplyChars    int       `json:"reply_chars"`
	MessageCount  int       `json:"message_count"`
	DurationMs    int64     `json:"duration_ms"`
}

// MemoryConsolidatedEvent is a transport-neutral event payload for a
// completed consolidation pass.
type MemoryConsolidatedEvent struct {
	SchemaVersion  int       `json:"schema_version"`
	EventType      string    `json:"event_type"`
	EventID        string    `json:"event_id"`
	EmittedAt      time.Time `json:"emitted_at"`
	SessionID      string    `json:"session_id"`
	Steps          []string  `json:"steps"`
	FailedSteps    []string  `json:"failed_steps,omitempty"`
	MessagesBefore int       `json:"messages_before"`
	MessagesAfter  int       `json:"messages_after"`
}
