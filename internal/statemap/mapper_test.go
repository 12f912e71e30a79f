package statemap_test

import (
	"testing"

	"github.com/carewise/carestore/internal/statemap"
	"github.com/carewise/carestore/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() map[string]any {
	return map[string]any{
		"wizard_step":    float64(3),
		"wizard_answers": map[string]any{"mobility": "walker"},
		"current_route":  "/wizard/care-needs",
		"profile":        map[string]any{"name": "Pat", "zip": "97201"},
		"preferences":    map[string]any{"contrast": "high"},
		"scratch":        "never persisted",
	}
}

func TestNewMapper_RejectsOverlap(t *testing.T) {
	_, err := statemap.NewMapper([]string{"a", "b"}, []string{"b", "c"})
	require.ErrorIs(t, err, errclass.ErrScopeOverlap)
}

func TestDefaultKeySetsDisjoint(t *testing.T) {
	assert.NotPanics(t, func() { statemap.NewDefaultMapper() })
}

func TestExtractSession_OnlyDeclaredKeys(t *testing.T) {
	m := statemap.NewDefaultMapper()
	got := m.ExtractSession(sampleState())

	assert.Equal(t, map[string]any{
		"wizard_step":    float64(3),
		"wizard_answers": map[string]any{"mobility": "walker"},
		"current_route":  "/wizard/care-needs",
	}, got)
	assert.NotContains(t, got, "profile")
	assert.NotContains(t, got, "scratch")
}

func TestExtractUser_OnlyDeclaredKeys(t *testing.T) {
	m := statemap.NewDefaultMapper()
	got := m.ExtractUser(sampleState())

	assert.Equal(t, map[string]any{
		"profile":     map[string]any{"name": "Pat", "zip": "97201"},
		"preferences": map[string]any{"contrast": "high"},
	}, got)
	assert.NotContains(t, got, "wizard_step")
}

func TestExtract_AbsentKeysOmitted(t *testing.T) {
	m := statemap.NewDefaultMapper()
	got := m.ExtractSession(map[string]any{"wizard_step": float64(1)})

	assert.Equal(t, map[string]any{"wizard_step": float64(1)}, got)
	assert.NotContains(t, got, "current_route")
}

func TestExtract_DeepCopies(t *testing.T) {
	m := statemap.NewDefaultMapper()
	state := sampleState()

	got := m.ExtractSession(state)
	got["wizard_answers"].(map[string]any)["mobility"] = "cane"

	assert.Equal(t, "walker", state["wizard_answers"].(map[string]any)["mobility"],
		"mutating the extract must not touch live state")
}

func TestMerge_DeepCopiesAndOverwrites(t *testing.T) {
	m := statemap.NewDefaultMapper()
	state := map[string]any{"wizard_step": float64(1)}
	payload := map[string]any{
		"wizard_step":    float64(5),
		"wizard_answers": map[string]any{"budget": float64(2000)},
	}

	m.Merge(state, payload)
	assert.Equal(t, float64(5), state["wizard_step"])

	payload["wizard_answers"].(map[string]any)["budget"] = float64(0)
	assert.Equal(t, float64(2000), state["wizard_answers"].(map[string]any)["budget"],
		"mutating the payload after merge must not touch live state")
}

func TestMergeExtract_RoundTrip(t *testing.T) {
	m := statemap.NewDefaultMapper()
	extracted := m.ExtractSession(sampleState())

	state := make(map[string]any)
	m.Merge(state, extracted)

	assert.Equal(t, extracted, m.ExtractSession(state))
}

func TestClearScopes(t *testing.T) {
	m := statemap.NewDefaultMapper()
	state := sampleState()

	m.ClearSessionScope(state)
	assert.NotContains(t, state, "wizard_step")
	assert.Contains(t, state, "profile")
	assert.Contains(t, state, "scratch")

	m.ClearUserScope(state)
	assert.NotContains(t, state, "profile")
	assert.Contains(t, state, "scratch")
}

func TestKeyAccessors(t *testing.T) {
	m, err := statemap.NewMapper([]string{"s1", "s2"}, []string{"u1"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"s1", "s2"}, m.SessionKeys())
	assert.ElementsMatch(t, []string{"u1"}, m.UserKeys())
}
