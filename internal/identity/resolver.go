// Package identity resolves session and user identifiers.
//
// Anonymous identity must be stable across reloads of the same client so an
// unauthenticated visitor can resume, but it must never bleed into a
// different authenticated identity that later logs in on the same client.
package identity

import (
	"strings"

	"github.com/google/uuid"

	"github.com/carewise/carestore/pkg/pathutil"
)

// AnonymousPrefix marks generated, non-PII user ids.
const AnonymousPrefix = "anon-"

// ResolveSessionID returns existing if it is present and well-formed,
// otherwise a fresh unique token.
func ResolveSessionID(existing string) string {
	if existing != "" && pathutil.IsWellFormed(existing) {
		return existing
	}
	return NewSessionID()
}

// ResolveUserID applies the identity precedence: an authenticated id always
// wins; otherwise an existing anonymous id is reused; otherwise a fresh
// anonymous id is generated.
func ResolveUserID(authenticatedID, anonymousID string) string {
	if authenticatedID != "" && pathutil.IsWellFormed(authenticatedID) {
		return authenticatedID
	}
	if anonymousID != "" && pathutil.IsWellFormed(anonymousID) {
		return anonymousID
	}
	return NewAnonymousID()
}

// NewSessionID generates a fresh session token.
func NewSessionID() string {
	return uuid.NewString()
}

// NewAnonymousID generates a fresh anonymous user id with a distinguishable
// prefix.
func NewAnonymousID() string {
	return AnonymousPrefix + uuid.NewString()
}

// IsAnonymous reports whether id was generated rather than supplied by an
// authentication provider.
func IsAnonymous(id string) bool {
	return strings.HasPrefix(id, AnonymousPrefix)
}
