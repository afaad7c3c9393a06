// Package session defines the conversation document persisted per session:
// identity, timestamps, the rolling summary, the structured memory record,
// and the full message transcript.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parlorhq/parlor/pkg/memory"
)

// Role values carried on messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single transcript entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// Session is the complete per-session document. It is serialized as one
// JSON object, so adding a field here changes the stored format.
type Session struct {
	ID        string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Summary   string        `json:"summary"`
	Memory    memory.Memory `json:"structured_memory"`
	Messages  []Message     `json:"messages"`
}

// New returns a fresh session document for id.
func New(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Summary:   "",
		Memory:    memory.Default(),
		Messages:  []Message{},
	}
}

// NewID generates a session identifier: 32 lowercase hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Normalize backfills missing pieces of a document loaded from storage so
// callers never observe nil slices or maps.
func (s *Session) Normalize() {
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	s.Memory = s.Memory.Normalize()
}

// Touch bumps the updated timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// AppendTurn records a user/assistant exchange. Both messages share one
// timestamp so the pair reads as a single turn.
func (s *Session) AppendTurn(userText, assistantText string) {
	now := time.Now().UTC()
	s.Messages = append(s.Messages,
		Message{Role: RoleUser, Content: userText, Timestamp: now},
		Message{Role: RoleAssistant, Content: assistantText, Timestamp: now},
	)
	s.UpdatedAt = now
}

// Window returns the last n messages. n <= 0 means the full transcript.
func (s *Session) Window(n int) []Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Clone returns a deep copy of the document.
func (s *Session) Clone() *Session {
	out := *s
	out.Memory = s.Memory.Clone()
	out.Messages = append([]Message{}, s.Messages...)
	return &out
}
