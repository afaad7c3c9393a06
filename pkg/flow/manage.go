package flow

import (
	"context"
	"strings"

	"github.com/parlorhq/parlor/pkg/memory"
	"github.com/parlorhq/parlor/pkg/session"
)

// Session returns the full session document, creating it lazily.
func (e *Engine) Session(ctx context.Context, id string) (*session.Session, error) {
	return e.store.Load(ctx, id)
}

// Summary returns the session's rolling summary.
func (e *Engine) Summary(ctx context.Context, id string) (string, error) {
	sess, err := e.store.Load(ctx, id)
	if err != nil {
		return "", err
	}
	return sess.Summary, nil
}

// SetSummary replaces the session's rolling summary. Surrounding whitespace
// is stripped before the summary is stored.
func (e *Engine) SetSummary(ctx context.Context, id, text string) error {
	_, err := e.store.Update(ctx, id, func(s *session.Session) error {
		s.Summary = strings.TrimSpace(text)
		return nil
	})
	return err
}

// ResetSummary clears the session's rolling summary.
func (e *Engine) ResetSummary(ctx context.Context, id string) error {
	return e.SetSummary(ctx, id, "")
}

// Memory returns the session's structured memory record. Records that were
// stored without preference entries read back with the defaults filled in.
func (e *Engine) Memory(ctx context.Context, id string) (memory.Memory, error) {
	sess, err := e.store.Load(ctx, id)
	if err != nil {
		return memory.Memory{}, err
	}
	return sess.Memory.WithDefaults(), nil
}

// MergeMemory folds an update into the session's structured memory using
// the same merge semantics as consolidation.
func (e *Engine) MergeMemory(ctx context.Context, id string, upd memory.Update) (memory.Memory, error) {
	sess, err := e.store.Update(ctx, id, func(s *session.Session) error {
		s.Memory = memory.Merge(s.Memory, upd, e.cfg.StructuredMaxItems)
		return nil
	})
	if err != nil {
		return memory.Memory{}, err
	}
	return sess.Memory, nil
}

// SetMemory replaces the session's structured memory record.
func (e *Engine) SetMemory(ctx context.Context, id string, mem memory.Memory) (memory.Memory, error) {
	sess, err := e.store.Update(ctx, id, func(s *session.Session) error {
		s.Memory = mem.WithDefaults()
		return nil
	})
	if err != nil {
		return memory.Memory{}, err
	}
	return sess.Memory, nil
}

// ResetMemory restores the session's structured memory to its defaults.
func (e *Engine) ResetMemory(ctx context.Context, id string) (memory.Memory, error) {
	sess, err := e.store.Update(ctx, id, func(s *session.Session) error {
		s.Memory = memory.Default()
		return nil
	})
	if err != nil {
		return memory.Memory{}, err
	}
	return sess.Memory, nil
}

// NewSession creates a session and returns its id.
func (e *Engine) NewSession(ctx context.Context) (string, error) {
	return e.store.Create(ctx, "")
}

// ListSessions returns all known session ids in sorted order.
func (e *Engine) ListSessions(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

// ResetSession replaces the session with a fresh empty document.
func (e *Engine) ResetSession(ctx context.Context, id string) (*session.Session, error) {
	return e.store.Reset(ctx, id)
}

// DeleteSession removes a session. Returns false when none existed.
func (e *Engine) DeleteSession(ctx context.Context, id string) (bool, error) {
	return e.store.Delete(ctx, id)
}
