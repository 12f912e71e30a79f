package identity_test

import (
	"strings"
	"testing"

	"github.com/carewise/carestore/internal/identity"
	"github.com/stretchr/testify/assert"
)

func TestResolveSessionID(t *testing.T) {
	assert.Equal(t, "existing-session", identity.ResolveSessionID("existing-session"))

	fresh := identity.ResolveSessionID("")
	assert.NotEmpty(t, fresh)
	assert.NotEqual(t, fresh, identity.ResolveSessionID(""))
}

func TestResolveSessionID_MalformedReplaced(t *testing.T) {
	for _, bad := range []string{"../escape", "a/b", "has space", strings.Repeat("x", 200)} {
		got := identity.ResolveSessionID(bad)
		assert.NotEqual(t, bad, got, "malformed id %q must not be reused", bad)
		assert.NotEmpty(t, got)
	}
}

func TestResolveUserID_AuthenticatedWins(t *testing.T) {
	got := identity.ResolveUserID("user-42", "anon-abc")
	assert.Equal(t, "user-42", got)
}

func TestResolveUserID_ExistingAnonymousReused(t *testing.T) {
	got := identity.ResolveUserID("", "anon-abc")
	assert.Equal(t, "anon-abc", got)
}

func TestResolveUserID_FreshAnonymous(t *testing.T) {
	got := identity.ResolveUserID("", "")
	assert.True(t, identity.IsAnonymous(got))
	assert.NotEqual(t, got, identity.ResolveUserID("", ""))
}

func TestResolveUserID_MalformedAuthenticatedFallsThrough(t *testing.T) {
	got := identity.ResolveUserID("../../etc/passwd", "anon-abc")
	assert.Equal(t, "anon-abc", got)
}

func TestIsAnonymous(t *testing.T) {
	assert.True(t, identity.IsAnonymous(identity.NewAnonymousID()))
	assert.False(t, identity.IsAnonymous("user-42"))
	assert.False(t, identity.IsAnonymous(identity.NewSessionID()))
}
