package memory

import "strings"

// Update is an incremental structured memory update, usually extracted from
// a conversation by the model. All fields are optional.
type Update struct {
	Profile     Profile           `json:"profile"`
	Preferences map[string]string `json:"preferences"`
	Facts       []string          `json:"facts"`
	Todos       []string          `json:"todos"`
}

// IsEmpty reports whether the update carries nothing to merge.
func (u Update) IsEmpty() bool {
	return u.Profile.Name == nil &&
		u.Profile.Role == nil &&
		len(u.Preferences) == 0 &&
		len(u.Facts) == 0 &&
		len(u.Todos) == 0
}

// Merge folds an update into a current record and returns the result.
// Merge is pure and idempotent: merging the same update twice yields the
// same record as merging it once.
//
// Profile and preference fields are last-write-wins per key. Facts and
// todos are append-with-dedupe: entries are whitespace-trimmed, empty and
// exact-duplicate strings are skipped, and each list is then truncated to
// its last maxItems entries (oldest evicted first). maxItems <= 0 falls
// back to DefaultMaxListItems.
func Merge(current Memory, update Update, maxItems int) Memory {
	if maxItems <= 0 {
		maxItems = DefaultMaxListItems
	}

	out := current.Normalize().Clone()

	if update.Profile.Name != nil {
		name := *update.Profile.Name
		out.Profile.Name = &name
	}
	if update.Profile.Role != nil {
		role := *update.Profile.Role
		out.Profile.Role = &role
	}

	for k, v := range update.Preferences {
		out.Preferences[k] = v
	}

	out.Facts = mergeList(out.Facts, update.Facts, maxItems)
	out.Todos = mergeList(out.Todos, update.Todos, maxItems)

	return out
}

// mergeList appends new unique entries and keeps the last maxItems.
func mergeList(existing, incoming []string, maxItems int) []string {
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[item] = true
	}

	for _, item := range incoming {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		existing = append(existing, item)
		seen[item] = true
	}

	if len(existing) > maxItems {
		existing = existing[len(existing)-maxItems:]
	}

	return existing
}
