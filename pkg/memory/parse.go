package memory

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrParse is returned when model output cannot be interpreted as a
// structured memory update. Callers treat it as "no update" rather than
// letting a malformed extraction touch stored state.
var ErrParse = errors.New("unparseable structured memory update")

// ParseUpdate interprets raw model output as an Update. The model is asked
// for bare JSON but gets no guarantees, so parsing is deliberately lax:
// the top level must be a JSON object, but inside it every wrong-typed
// field is ignored and non-string list entries are dropped. A valid empty
// object parses to an empty Update.
func ParseUpdate(text string) (Update, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	upd := Update{}

	if profile, ok := raw["profile"].(map[string]any); ok {
		upd.Profile.Name = optionalString(profile, "name")
		upd.Profile.Role = optionalString(profile, "role")
	}

	if prefs, ok := raw["preferences"].(map[string]any); ok {
		for k, v := range prefs {
			if s, ok := v.(string); ok {
				if upd.Preferences == nil {
					upd.Preferences = map[string]string{}
				}
				upd.Preferences[k] = s
			}
		}
	}

	upd.Facts = stringList(raw, "facts")
	upd.Todos = stringList(raw, "todos")

	return upd, nil
}

// optionalString returns a pointer to the string value for key, or nil when
// the key is absent, null, or not a string.
func optionalString(m map[string]any, key string) *string {
	if s, ok := m[key].(string); ok {
		return &s
	}
	return nil
}

// stringList extracts the string entries of a list field, discarding
// everything else.
func stringList(raw map[string]any, key string) []string {
	list, ok := raw[key].([]any)
	if !ok {
		return nil
	}

	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
