package audit_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carewise/carestore/internal/audit"
	"github.com/carewise/carestore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAppender(t *testing.T) (*audit.FileAppender, string) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	return audit.NewFileAppender(path), path
}

func TestAppender_VerifyEmptyLog(t *testing.T) {
	a, _ := newAppender(t)

	count, err := a.Verify()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAppender_AppendAndVerifyChain(t *testing.T) {
	a, path := newAppender(t)

	require.NoError(t, a.Append(model.EventSessionCleared, model.KindSession, "s1", nil))
	require.NoError(t, a.Append(model.EventUserDeleted, model.KindUser, "u1", map[string]any{"reason": "gdpr"}))
	require.NoError(t, a.Append(model.EventRetentionSweep, model.KindSession, "", map[string]any{"deleted_count": 3}))

	count, err := a.Verify()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
}

func TestAppender_TamperedRecordDetected(t *testing.T) {
	a, path := newAppender(t)

	require.NoError(t, a.Append(model.EventUserDeleted, model.KindUser, "u1", nil))
	require.NoError(t, a.Append(model.EventUserDeleted, model.KindUser, "u2", nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"u1"`, `"u9"`, 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	_, err = a.Verify()
	assert.Error(t, err)
}

func TestAppender_DroppedRecordDetected(t *testing.T) {
	a, path := newAppender(t)

	require.NoError(t, a.Append(model.EventUserDeleted, model.KindUser, "u1", nil))
	require.NoError(t, a.Append(model.EventUserDeleted, model.KindUser, "u2", nil))
	require.NoError(t, a.Append(model.EventUserDeleted, model.KindUser, "u3", nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.SplitAfter(string(data), "\n")
	require.GreaterOrEqual(t, len(lines), 3)

	// Remove the middle record; the third's prev_hash no longer matches.
	truncated := lines[0] + lines[2]
	require.NoError(t, os.WriteFile(path, []byte(truncated), 0644))

	_, err = a.Verify()
	assert.Error(t, err)
}
