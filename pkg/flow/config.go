package flow

import "github.com/parlorhq/parlor/pkg/memory"

const (
	// DefaultWindowMessages is how many recent messages are kept in the
	// model's short-term context. Zero or negative means the full
	// transcript.
	DefaultWindowMessages = 12

	// DefaultSummarizeThreshold is the transcript length that triggers a
	// consolidation pass. Zero or negative disables consolidation.
	DefaultSummarizeThreshold = 20

	// DefaultSummaryMaxWords is the word budget the summarizer is asked to
	// stay within. Advisory only; overlong model output is kept as-is.
	DefaultSummaryMaxWords = 140
)

// Config tunes the turn pipeline.
type Config struct {
	// Model names the chat model, for event payloads and logs. The
	// generator itself is already bound to a model.
	Model string

	// WindowMessages is the short-term context size in individual messages.
	WindowMessages int

	// SummarizeThreshold triggers consolidation once the transcript grows
	// past this many individual messages.
	SummarizeThreshold int

	// SummaryMaxWords is the advisory word budget for the rolling summary.
	SummaryMaxWords int

	// StructuredEnabled toggles structured memory extraction during
	// consolidation.
	StructuredEnabled bool

	// StructuredMaxItems caps the facts and todos lists.
	StructuredMaxItems int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		WindowMessages:     DefaultWindowMessages,
		SummarizeThreshold: DefaultSummarizeThreshold,
		SummaryMaxWords:    DefaultSummaryMaxWords,
		StructuredEnabled:  true,
		StructuredMaxItems: memory.DefaultMaxListItems,
	}
}
