// Package flow runs the conversational turn pipeline: assemble a prompt
// from session memory, generate a reply, persist the exchange, and
// consolidate memory once the transcript outgrows its threshold.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parlorhq/parlor/pkg/eventstream"
	"github.com/parlorhq/parlor/pkg/llm"
	"github.com/parlorhq/parlor/pkg/memory"
	"github.com/parlorhq/parlor/pkg/session"
	"github.com/parlorhq/parlor/pkg/store"
)

// Step names reported in consolidation outcomes.
const (
	StepSummarize = "summarize"
	StepExtract   = "extract"
	StepPrune     = "prune"
)

// Step statuses.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// StepOutcome records how one consolidation step went.
type StepOutcome struct {
	Name   string
	Status string
	Err    error
}

// TurnResult is what one chat turn produced.
type TurnResult struct {
	SessionID      string
	Reply          string
	Consolidated   bool
	Steps          []StepOutcome
	MessagesBefore int
}

// Engine wires the session store, the model, and the event stream into the
// turn pipeline.
type Engine struct {
	store  store.Driver
	gen    llm.Generator
	events eventstream.Publisher
	log    *slog.Logger
	cfg    Config
}

// NewEngine creates a turn engine.
func NewEngine(driver store.Driver, gen llm.Generator, events eventstream.Publisher, log *slog.Logger, cfg Config) *Engine {
	return &Engine{
		store:  driver,
		gen:    gen,
		events: events,
		log:    log,
		cfg:    cfg,
	}
}

// RunTurn executes one chat turn. An empty sessionID starts a new session.
//
// The whole read-generate-append-consolidate cycle runs under the
// session's lock, so concurrent turns on one session serialize and the
// document is written exactly once per turn. A generation failure aborts
// the turn without persisting anything; a consolidation step failure is
// contained and the reply is still returned.
func (e *Engine) RunTurn(ctx context.Context, sessionID, prompt string) (*TurnResult, error) {
	start := time.Now()

	if sessionID == "" {
		id, err := e.store.Create(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}
		sessionID = id
	}

	result := &TurnResult{SessionID: sessionID}

	sess, err := e.store.Update(ctx, sessionID, func(s *session.Session) error {
		recent := s.Window(e.cfg.WindowMessages)
		chatPrompt := buildChatPrompt(s.Summary, s.Memory, recent, prompt)

		reply, err := e.gen.Generate(ctx, chatPrompt)
		if err != nil {
			return fmt.Errorf("generating reply: %w", err)
		}

		s.AppendTurn(prompt, reply)
		result.Reply = reply

		if e.cfg.SummarizeThreshold > 0 && len(s.Messages) > e.cfg.SummarizeThreshold {
			result.Consolidated = true
			result.MessagesBefore = len(s.Messages)
			result.Steps = e.consolidate(ctx, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publishTurn(ctx, sess, prompt, result, time.Since(start))
	if result.Consolidated {
		e.publishConsolidation(ctx, sess, result)
	}

	return result, nil
}

// consolidate folds the full transcript into the rolling summary, extracts
// a structured memory update, and prunes old messages. Each step failure
// is contained: a failed summary skips pruning so no context is lost, a
// failed extraction leaves structured memory untouched but still allows
// pruning.
func (e *Engine) consolidate(ctx context.Context, s *session.Session) []StepOutcome {
	var steps []StepOutcome

	summaryOK := true
	newSummary, err := e.gen.Generate(ctx, buildSummaryPrompt(s.Summary, s.Messages, e.cfg.SummaryMaxWords))
	if err != nil {
		summaryOK = false
		steps = append(steps, StepOutcome{Name: StepSummarize, Status: StatusFailed, Err: err})
		e.log.Warn("summary update failed", "session_id", s.ID, "error", err)
	} else {
		s.Summary = strings.TrimSpace(newSummary)
		steps = append(steps, StepOutcome{Name: StepSummarize, Status: StatusOK})
	}

	switch {
	case !e.cfg.StructuredEnabled:
		steps = append(steps, StepOutcome{Name: StepExtract, Status: StatusSkipped})
	default:
		raw, err := e.gen.Generate(ctx, buildExtractPrompt(s.Messages))
		if err != nil {
			steps = append(steps, StepOutcome{Name: StepExtract, Status: StatusFailed, Err: err})
			e.log.Warn("memory extraction failed", "session_id", s.ID, "error", err)
			break
		}

		upd, err := memory.ParseUpdate(raw)
		if err != nil {
			steps = append(steps, StepOutcome{Name: StepExtract, Status: StatusFailed, Err: err})
			e.log.Warn("memory extraction unparseable", "session_id", s.ID, "error", err)
			break
		}

		if !upd.IsEmpty() {
			s.Memory = memory.Merge(s.Memory, upd, e.cfg.StructuredMaxItems)
		}
		steps = append(steps, StepOutcome{Name: StepExtract, Status: StatusOK})
	}

	// Pruning discards everything outside the window, so it only runs
	// once the summary has absorbed the full transcript.
	if !summaryOK {
		steps = append(steps, StepOutcome{Name: StepPrune, Status: StatusSkipped})
		return steps
	}

	if e.cfg.WindowMessages > 0 && len(s.Messages) > e.cfg.WindowMessages {
		s.Messages = append([]session.Message{}, s.Messages[len(s.Messages)-e.cfg.WindowMessages:]...)
	}
	steps = append(steps, StepOutcome{Name: StepPrune, Status: StatusOK})

	return steps
}

func (e *Engine) publishTurn(ctx context.Context, s *session.Session, prompt string, result *TurnResult, elapsed time.Duration) {
	event := &eventstream.TurnCompletedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		SessionID:     s.ID,
		Model:         e.cfg.Model,
		PromptChars:   len(prompt),
		ReplyChars:    len(result.Reply),
		MessageCount:  len(s.Messages),
		DurationMs:    elapsed.Milliseconds(),
	}

	if err := e.events.PublishTurn(ctx, event); err != nil {
		e.log.Warn("turn event publish failed", "session_id", s.ID, "error", err)
	}
}

func (e *Engine) publishConsolidation(ctx context.Context, s *session.Session, result *TurnResult) {
	event := &eventstream.MemoryConsolidatedEvent{
		SchemaVersion:  eventstream.SchemaVersionV1,
		EventType:      eventstream.EventTypeMemoryConsolidated,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now().UTC(),
		SessionID:      s.ID,
		MessagesBefore: result.MessagesBefore,
		MessagesAfter:  len(s.Messages),
	}

	for _, step := range result.Steps {
		event.Steps = append(event.Steps, step.Name)
		if step.Status == StatusFailed {
			event.FailedSteps = append(event.FailedSteps, step.Name)
		}
	}

	if err := e.events.PublishConsolidation(ctx, event); err != nil {
		e.log.Warn("consolidation event publish failed", "session_id", s.ID, "error", err)
	}
}

// FailedSteps filters a step list down to the failures.
func FailedSteps(steps []StepOutcome) []StepOutcome {
	var failed []StepOutcome
	for _, step := range steps {
		if step.Status == StatusFailed {
			failed = append(failed, step)
		}
	}
	return failed
}

// IsGenerationError reports whether err came from the model rather than
// from storage.
func IsGenerationError(err error) bool {
	return errors.Is(err, llm.ErrGeneration)
}
