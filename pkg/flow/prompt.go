package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parlorhq/parlor/pkg/memory"
	"github.com/parlorhq/parlor/pkg/session"
)

// promptListPreview caps how many facts and todos are rendered into the
// chat prompt. The stored lists can be longer.
const promptListPreview = 10

// formatHistory renders messages as a readable transcript.
func formatHistory(messages []session.Message) string {
	var lines []string
	for _, m := range messages {
		switch m.Role {
		case session.RoleUser:
			lines = append(lines, "User: "+m.Content)
		case session.RoleAssistant:
			lines = append(lines, "Assistant: "+m.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// formatStructuredMemory renders the structured memory record for the chat
// prompt.
func formatStructuredMemory(mem memory.Memory) string {
	var lines []string

	lines = append(lines, "Profile:")
	lines = append(lines, "- name: "+stringOrNone(mem.Profile.Name))
	lines = append(lines, "- role: "+stringOrNone(mem.Profile.Role))

	lines = append(lines, "Preferences:")
	for _, k := range sortedKeys(mem.Preferences) {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, mem.Preferences[k]))
	}

	lines = append(lines, "Relevant facts:")
	lines = append(lines, formatList(mem.Facts)...)

	lines = append(lines, "Tasks and reminders:")
	lines = append(lines, formatList(mem.Todos)...)

	return strings.Join(lines, "\n")
}

func formatList(items []string) []string {
	if len(items) == 0 {
		return []string{"- (none)"}
	}
	if len(items) > promptListPreview {
		items = items[len(items)-promptListPreview:]
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return lines
}

func stringOrNone(s *string) string {
	if s == nil {
		return "(unknown)"
	}
	return *s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Stable prompt text keeps generation deterministic per state.
	sort.Strings(keys)
	return keys
}

// buildChatPrompt assembles the full model prompt for one turn: persistent
// structured memory, the rolling summary, the recent message window, and
// the new user prompt.
func buildChatPrompt(summary string, mem memory.Memory, recent []session.Message, userPrompt string) string {
	var parts []string

	parts = append(parts, "You are a helpful, accurate, and concise assistant.")
	parts = append(parts, "Answer in the user's language unless asked otherwise.")
	parts = append(parts, "")

	parts = append(parts, "Structured memory (persistent):")
	parts = append(parts, formatStructuredMemory(mem))
	parts = append(parts, "")

	if strings.TrimSpace(summary) != "" {
		parts = append(parts, "Summary of the conversation so far (long-term memory):")
		parts = append(parts, strings.TrimSpace(summary))
		parts = append(parts, "")
	}

	parts = append(parts, "Recent context (short-term memory):")
	if len(recent) > 0 {
		parts = append(parts, formatHistory(recent))
	} else {
		parts = append(parts, "(no recent context)")
	}
	parts = append(parts, "")

	parts = append(parts, "User: "+userPrompt)
	parts = append(parts, "Assistant:")

	return strings.Join(parts, "\n")
}

// buildSummaryPrompt asks the model to fold new messages into the rolling
// summary.
func buildSummaryPrompt(prevSummary string, messages []session.Message, maxWords int) string {
	prev := strings.TrimSpace(prevSummary)
	if prev == "" {
		prev = "(empty)"
	}

	return strings.TrimSpace(fmt.Sprintf(`
Your task: update a cumulative summary of a conversation.

Current summary:
%s

New messages to fold into the summary:
%s

Return ONLY the new final summary:
- At most %d words.
- Keep persistent facts and user preferences.
- Leave out ephemeral details and long lists.
- Keep a neutral tone.
`, prev, formatHistory(messages), maxWords))
}

// buildExtractPrompt asks the model for a structured memory update as bare
// JSON.
func buildExtractPrompt(messages []session.Message) string {
	return strings.TrimSpace(fmt.Sprintf(`
Extract a structured memory update from a conversation.

Return ONLY valid JSON (no Markdown) with THIS schema (all fields optional):
{
  "profile": {"name": string|null, "role": string|null},
  "preferences": {"language": string, "tone": string},
  "facts": [string],
  "todos": [string]
}

Rules:
- Do not invent data.
- facts/todos: short phrases.
- If there is nothing new, return {}.

Conversation:
%s
`, formatHistory(messages)))
}
