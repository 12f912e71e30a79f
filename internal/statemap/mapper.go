// Package statemap classifies runtime state keys into persistence scopes and
// moves values between the live state mapping and record payloads.
package statemap

import (
	"github.com/carewise/carestore/pkg/errclass"
)

// Default scope key sets for the care-planning wizard. Keys in neither set
// are process-lifetime only and never persisted.
var (
	DefaultSessionKeys = []string{
		"current_route",
		"wizard_step",
		"wizard_answers",
		"last_error",
	}
	DefaultUserKeys = []string{
		"profile",
		"product_progress",
		"recommendations",
		"preferences",
		"feature_flags",
	}
)

// Mapper extracts and merges scoped state. The two key sets are disjoint;
// NewMapper rejects any overlap.
type Mapper struct {
	sessionKeys map[string]struct{}
	userKeys    map[string]struct{}
}

// NewMapper builds a mapper from the two scope key sets.
func NewMapper(sessionKeys, userKeys []string) (*Mapper, error) {
	m := &Mapper{
		sessionKeys: make(map[string]struct{}, len(sessionKeys)),
		userKeys:    make(map[string]struct{}, len(userKeys)),
	}
	for _, k := range sessionKeys {
		m.sessionKeys[k] = struct{}{}
	}
	for _, k := range userKeys {
		if _, dup := m.sessionKeys[k]; dup {
			return nil, errclass.ErrScopeOverlap.WithMessagef(
				"key %q declared in both session and user scope", k)
		}
		m.userKeys[k] = struct{}{}
	}
	return m, nil
}

// NewDefaultMapper builds a mapper with the built-in key sets.
func NewDefaultMapper() *Mapper {
	m, err := NewMapper(DefaultSessionKeys, DefaultUserKeys)
	if err != nil {
		panic("statemap: default key sets overlap: " + err.Error())
	}
	return m
}

// ExtractSession copies the session-scoped keys out of state. The result
// shares no references with state: every nested structure is deep-copied, so
// mutating one side after extraction cannot corrupt the other.
func (m *Mapper) ExtractSession(state map[string]any) map[string]any {
	return m.extract(state, m.sessionKeys)
}

// ExtractUser copies the user-scoped keys out of state.
func (m *Mapper) ExtractUser(state map[string]any) map[string]any {
	return m.extract(state, m.userKeys)
}

func (m *Mapper) extract(state map[string]any, keys map[string]struct{}) map[string]any {
	out := make(map[string]any)
	for k := range keys {
		if v, ok := state[k]; ok {
			out[k] = deepCopy(v)
		}
	}
	return out
}

// Merge sets every key of payload into state, overwriting existing values.
// Loaded state wins over defaults; callers must merge once at request start,
// before business logic runs. Values are deep-copied on the way in.
func (m *Mapper) Merge(state map[string]any, payload map[string]any) {
	for k, v := range payload {
		state[k] = deepCopy(v)
	}
}

// ClearSessionScope removes all session-scoped keys from state. Used when
// switching identities so nothing leaks from one identity into another
// within the same browser session.
func (m *Mapper) ClearSessionScope(state map[string]any) {
	for k := range m.sessionKeys {
		delete(state, k)
	}
}

// ClearUserScope removes all user-scoped keys from state.
func (m *Mapper) ClearUserScope(state map[string]any) {
	for k := range m.userKeys {
		delete(state, k)
	}
}

// SessionKeys returns the session scope key set.
func (m *Mapper) SessionKeys() []string { return keysOf(m.sessionKeys) }

// UserKeys returns the user scope key set.
func (m *Mapper) UserKeys() []string { return keysOf(m.userKeys) }

func keysOf(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// deepCopy clones the JSON value shapes: maps, slices, scalars. Payloads are
// JSON documents, so these are the only shapes that survive a round trip.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		// string, float64, bool, nil and other scalars are immutable
		return val
	}
}
