package flow_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/parlorhq/parlor/pkg/eventstream"
	"github.com/parlorhq/parlor/pkg/flow"
	"github.com/parlorhq/parlor/pkg/memory"
	"github.com/parlorhq/parlor/pkg/store/inmemory"
)

func memoryUpdate(name *string, facts ...string) memory.Update {
	return memory.Update{
		Profile: memory.Profile{Name: name},
		Facts:   facts,
	}
}

// fakeGen scripts model output per prompt kind. The engine builds three
// prompt shapes and each one opens with a recognizable line.
type fakeGen struct {
	prompts []string

	chatErr    error
	chatCount  int
	summary    string
	summaryErr error
	extract    string
	extractErr error
}

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)

	switch {
	case strings.HasPrefix(prompt, "Your task: update a cumulative summary"):
		return f.summary, f.summaryErr
	case strings.HasPrefix(prompt, "Extract a structured memory update"):
		return f.extract, f.extractErr
	default:
		if f.chatErr != nil {
			return "", f.chatErr
		}
		f.chatCount++
		return fmt.Sprintf("reply %d", f.chatCount), nil
	}
}

func (f *fakeGen) Close() error { return nil }

// recordingEvents captures published events.
type recordingEvents struct {
	turns          []*eventstream.TurnCompletedEvent
	consolidations []*eventstream.MemoryConsolidatedEvent
}

func (r *recordingEvents) PublishTurn(_ context.Context, e *eventstream.TurnCompletedEvent) error {
	r.turns = append(r.turns, e)
	return nil
}

func (r *recordingEvents) PublishConsolidation(_ context.Context, e *eventstream.MemoryConsolidatedEvent) error {
	r.consolidations = append(r.consolidations, e)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

var _ = Describe("Engine", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		gen    *fakeGen
		events *recordingEvents
		engine *flow.Engine
		cfg    flow.Config
	)

	newEngine := func() *flow.Engine {
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		return flow.NewEngine(driver, gen, events, log, cfg)
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		gen = &fakeGen{summary: "running summary", extract: "{}"}
		events = &recordingEvents{}
		cfg = flow.Config{
			Model:              "test-model",
			WindowMessages:     3,
			SummarizeThreshold: 4,
			SummaryMaxWords:    50,
			StructuredEnabled:  true,
			StructuredMaxItems: 20,
		}
		engine = newEngine()
	})

	Describe("RunTurn", func() {
		It("appends a user/assistant pair and persists it", func() {
			result, err := engine.RunTurn(ctx, "abc123", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.SessionID).To(Equal("abc123"))
			Expect(result.Reply).To(Equal("reply 1"))
			Expect(result.Consolidated).To(BeFalse())

			sess, err := driver.Load(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Messages).To(HaveLen(2))
			Expect(sess.Messages[0].Content).To(Equal("hello"))
			Expect(sess.Messages[1].Content).To(Equal("reply 1"))
			Expect(sess.Messages[0].Timestamp).To(Equal(sess.Messages[1].Timestamp))
		})

		It("starts a new session when no id is given", func() {
			result, err := engine.RunTurn(ctx, "", "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.SessionID).To(MatchRegexp(`^[a-f0-9]{32}$`))

			ids, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{result.SessionID}))
		})

		It("builds the chat prompt from summary, memory, and the recent window", func() {
			cfg.SummarizeThreshold = 100
			engine = newEngine()

			Expect(engine.SetSummary(ctx, "abc123", "they talked about tea")).To(Succeed())

			for i := 0; i < 3; i++ {
				_, err := engine.RunTurn(ctx, "abc123", fmt.Sprintf("question %d", i))
				Expect(err).NotTo(HaveOccurred())
			}

			last := gen.prompts[len(gen.prompts)-1]
			Expect(last).To(ContainSubstring("they talked about tea"))
			Expect(last).To(ContainSubstring("Structured memory (persistent):"))
			Expect(last).To(ContainSubstring("User: question 1"))
			Expect(last).To(HaveSuffix("Assistant:"))

			// Window is 3, so the first user message has scrolled out of
			// the recent context by the third turn.
			Expect(last).NotTo(ContainSubstring("question 0"))
		})

		It("propagates a generation failure without persisting the turn", func() {
			gen.chatErr = fmt.Errorf("model unavailable")

			_, err := engine.RunTurn(ctx, "abc123", "hello")
			Expect(err).To(HaveOccurred())

			sess, err := driver.Load(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Messages).To(BeEmpty())
		})

		It("publishes a turn event", func() {
			_, err := engine.RunTurn(ctx, "abc123", "hello")
			Expect(err).NotTo(HaveOccurred())

			Expect(events.turns).To(HaveLen(1))
			Expect(events.turns[0].SessionID).To(Equal("abc123"))
			Expect(events.turns[0].Model).To(Equal("test-model"))
			Expect(events.turns[0].MessageCount).To(Equal(2))
		})
	})

	Describe("consolidation", func() {
		runTurns := func(n int) *flow.TurnResult {
			var result *flow.TurnResult
			for i := 0; i < n; i++ {
				var err error
				result, err = engine.RunTurn(ctx, "abc123", fmt.Sprintf("question %d", i))
				Expect(err).NotTo(HaveOccurred())
			}
			return result
		}

		It("summarizes, extracts, and prunes once the transcript passes the threshold", func() {
			gen.extract = `{"facts": ["drinks green tea"]}`

			result := runTurns(3)
			Expect(result.Consolidated).To(BeTrue())
			Expect(result.MessagesBefore).To(Equal(6))

			Expect(flow.FailedSteps(result.Steps)).To(BeEmpty())

			sess, err := driver.Load(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Summary).To(Equal("running summary"))
			Expect(sess.Memory.Facts).To(Equal([]string{"drinks green tea"}))
			Expect(sess.Messages).To(HaveLen(3))
			Expect(sess.Messages[2].Content).To(Equal("reply 3"))
		})

		It("feeds the full pre-prune transcript to the summarizer", func() {
			runTurns(3)

			var summaryPrompt string
			for _, p := range gen.prompts {
				if strings.HasPrefix(p, "Your task: update a cumulative summary") {
					summaryPrompt = p
				}
			}
			Expect(summaryPrompt).NotTo(BeEmpty())

			// The oldest messages are pruned by this consolidation pass, but
			// the summary was computed before pruning and must cover them.
			Expect(summaryPrompt).To(ContainSubstring("question 0"))
			Expect(summaryPrompt).To(ContainSubstring("reply 1"))
			Expect(summaryPrompt).To(ContainSubstring("question 1"))

			sess, err := driver.Load(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Messages).To(HaveLen(3))
			Expect(sess.Messages[0].Content).To(Equal("reply 2"))
		})

		It("stores the summary with surrounding whitespace stripped", func() {
			gen.summary = "\n  running summary  \n"

			runTurns(3)

			sess, err := driver.Load(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Summary).To(Equal("running summary"))
		})

		It("does not consolidate below the threshold", func() {
			result := runTurns(2)
			Expect(result.Consolidated).To(BeFalse())

			sess, err := driver.Load(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Messages).To(HaveLen(4))
			Expect(sess.Summary).To(BeEmpty())
		})

		It("leaves memory untouched but still prunes on unparseable extraction", func() {
			gen.extract = "I could not produce JSON, sorry!"

			result := runTurns(3)
			Expect(result.Consolidated).To(BeTrue())

			failed := flow.FailedSteps(result.Steps)
			Expect(failed).To(HaveLen(1))
			Expect(failed[0].Name).To(Equal(flow.StepExtract))

			sess, err := driver.Load(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Memory.Facts).To(BeEmpty())
			Expect(sess.Messages).To(HaveLen(3))
		})

		It("skips pruning when the summary update fails", func() {
			gen.summaryErr = fmt.Errorf("model unavailable")

			result := runTurns(3)
			Expect(result.Consolidated).To(BeTrue())
			Expect(result.Reply).To(Equal("reply 3"))

			var statuses = map[string]string{}
			for _, step := range result.Steps {
				statuses[step.Name] = step.Status
			}
			Expect(statuses[flow.StepSummarize]).To(Equal(flow.StatusFailed))
			Expect(statuses[flow.StepPrune]).To(Equal(flow.StatusSkipped))

			sess, err := driver.Load(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Summary).To(BeEmpty())
			Expect(sess.Messages).To(HaveLen(6))
		})

		It("skips extraction when structured memory is disabled", func() {
			cfg.StructuredEnabled = false
			engine = newEngine()

			result := runTurns(3)
			Expect(result.Consolidated).To(BeTrue())

			var statuses = map[string]string{}
			for _, step := range result.Steps {
				statuses[step.Name] = step.Status
			}
			Expect(statuses[flow.StepExtract]).To(Equal(flow.StatusSkipped))
			Expect(statuses[flow.StepPrune]).To(Equal(flow.StatusOK))
		})

		It("never consolidates when the threshold is disabled", func() {
			cfg.SummarizeThreshold = 0
			engine = newEngine()

			result := runTurns(5)
			Expect(result.Consolidated).To(BeFalse())

			sess, err := driver.Load(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Messages).To(HaveLen(10))
		})

		It("publishes a consolidation event with failed steps", func() {
			gen.extractErr = fmt.Errorf("model unavailable")

			runTurns(3)

			Expect(events.consolidations).To(HaveLen(1))
			event := events.consolidations[0]
			Expect(event.SessionID).To(Equal("abc123"))
			Expect(event.Steps).To(Equal([]string{"summarize", "extract", "prune"}))
			Expect(event.FailedSteps).To(Equal([]string{"extract"}))
			Expect(event.MessagesBefore).To(Equal(6))
			Expect(event.MessagesAfter).To(Equal(3))
		})
	})

	Describe("management operations", func() {
		It("round trips the summary", func() {
			Expect(engine.SetSummary(ctx, "abc123", "short recap")).To(Succeed())

			summary, err := engine.Summary(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(summary).To(Equal("short recap"))

			Expect(engine.ResetSummary(ctx, "abc123")).To(Succeed())
			summary, err = engine.Summary(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(summary).To(BeEmpty())
		})

		It("trims the summary before storing it", func() {
			Expect(engine.SetSummary(ctx, "abc123", "  short recap \n")).To(Succeed())

			summary, err := engine.Summary(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(summary).To(Equal("short recap"))
		})

		It("merges and resets structured memory", func() {
			name := "Ana"
			mem, err := engine.MergeMemory(ctx, "abc123", memoryUpdate(&name, "likes tea"))
			Expect(err).NotTo(HaveOccurred())
			Expect(*mem.Profile.Name).To(Equal("Ana"))
			Expect(mem.Facts).To(Equal([]string{"likes tea"}))

			mem, err = engine.ResetMemory(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(mem.Profile.Name).To(BeNil())
			Expect(mem.Facts).To(BeEmpty())
		})

		It("fills preference defaults when a partial record is stored", func() {
			name := "Ana"
			stored, err := engine.SetMemory(ctx, "abc123", memory.Memory{
				Profile: memory.Profile{Name: &name},
				Facts:   []string{"likes tea"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Preferences).To(Equal(map[string]string{"language": "en", "tone": "neutral"}))

			mem, err := engine.Memory(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(*mem.Profile.Name).To(Equal("Ana"))
			Expect(mem.Facts).To(Equal([]string{"likes tea"}))
			Expect(mem.Preferences).To(Equal(map[string]string{"language": "en", "tone": "neutral"}))
		})

		It("keeps stored preferences over the defaults", func() {
			_, err := engine.SetMemory(ctx, "abc123", memory.Memory{
				Preferences: map[string]string{"tone": "formal"},
			})
			Expect(err).NotTo(HaveOccurred())

			mem, err := engine.Memory(ctx, "abc123")
			Expect(err).NotTo(HaveOccurred())
			Expect(mem.Preferences).To(Equal(map[string]string{"language": "en", "tone": "formal"}))
		})

		It("creates, lists, resets, and deletes sessions", func() {
			id, err := engine.NewSession(ctx)
			Expect(err).NotTo(HaveOccurred())

			ids, err := engine.ListSessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ContainElement(id))

			_, err = engine.RunTurn(ctx, id, "hello")
			Expect(err).NotTo(HaveOccurred())

			sess, err := engine.ResetSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Messages).To(BeEmpty())

			deleted, err := engine.DeleteSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeTrue())
		})
	})
})
