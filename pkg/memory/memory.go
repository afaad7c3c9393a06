// Package memory implements the structured memory record kept per session
// and the pure merge logic that folds incremental updates into it.
//
// A structured memory record has a fixed top-level shape: a profile with
// last-write-wins scalar fields, an open preferences map, and two bounded
// FIFO lists of unique strings (facts and todos). Updates typically come
// from model output, so every boundary here is tolerant: wrong-typed
// fields are treated as absent and non-string list entries are discarded.
package memory

// DefaultMaxListItems caps the facts and todos lists when no explicit cap
// is configured.
const DefaultMaxListItems = 20

// Profile holds durable identity fields about the user. Nil means the
// field has never been learned.
type Profile struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

// Memory is the structured memory record persisted with each session.
type Memory struct {
	Profile     Profile           `json:"profile"`
	Preferences map[string]string `json:"preferences"`
	Facts       []string          `json:"facts"`
	Todos       []string          `json:"todos"`
}

// Default returns a fresh structured memory record.
func Default() Memory {
	return Memory{
		Profile: Profile{},
		Preferences: map[string]string{
			"language": "en",
			"tone":     "neutral",
		},
		Facts: []string{},
		Todos: []string{},
	}
}

// WithDefaults overlays the record onto a fresh default record. A stored
// document that omits preferences, facts, or todos reads back with the
// default entries present; anything the record does carry wins over the
// defaults. The result shares no storage with the receiver.
func (m Memory) WithDefaults() Memory {
	out := Default()
	if m.Profile.Name != nil {
		name := *m.Profile.Name
		out.Profile.Name = &name
	}
	if m.Profile.Role != nil {
		role := *m.Profile.Role
		out.Profile.Role = &role
	}
	for k, v := range m.Preferences {
		out.Preferences[k] = v
	}
	out.Facts = append(out.Facts, m.Facts...)
	out.Todos = append(out.Todos, m.Todos...)
	return out
}

// Normalize backfills any missing pieces of a record loaded from storage so
// callers never observe nil maps or slices.
func (m Memory) Normalize() Memory {
	if m.Preferences == nil {
		m.Preferences = map[string]string{}
	}
	if m.Facts == nil {
		m.Facts = []string{}
	}
	if m.Todos == nil {
		m.Todos = []string{}
	}
	return m
}

// Clone returns a deep copy of the record.
func (m Memory) Clone() Memory {
	out := Memory{
		Profile:     Profile{},
		Preferences: make(map[string]string, len(m.Preferences)),
		Facts:       append([]string{}, m.Facts...),
		Todos:       append([]string{}, m.Todos...),
	}
	if m.Profile.Name != nil {
		name := *m.Profile.Name
		out.Profile.Name = &name
	}
	if m.Profile.Role != nil {
		role := *m.Profile.Role
		out.Profile.Role = &role
	}
	for k, v := range m.Preferences {
		out.Preferences[k] = v
	}
	return out
}
