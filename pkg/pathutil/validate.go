// Package pathutil validates record identifiers before they become file names.
package pathutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/carewise/carestore/pkg/errclass"
)

var idRegex = regexp.MustCompile(`^[\pL\pN._-]+$`)

// MaxIDLength bounds record ids so derived file names stay under common
// filesystem limits.
const MaxIDLength = 128

// ValidateID checks that a session or user id is safe to use as an on-disk
// record name: no separators, no traversal, no control characters. The id
// must already be in NFC form — callers build file paths from the id as
// given, and two canonically-equal spellings must not name two different
// record files.
func ValidateID(id string) error {
	if id == "" {
		return errclass.ErrNameInvalid.WithMessage("id must not be empty")
	}
	if len(id) > MaxIDLength {
		return errclass.ErrNameInvalid.WithMessagef("id exceeds %d characters", MaxIDLength)
	}
	if norm.NFC.String(id) != id {
		return errclass.ErrNameInvalid.WithMessagef("id must be NFC-normalized: %q", id)
	}

	if strings.Contains(id, "..") {
		return errclass.ErrNameInvalid.WithMessagef("id must not contain '..': %s", id)
	}
	if strings.ContainsAny(id, "/\\") {
		return errclass.ErrNameInvalid.WithMessagef("id must not contain separators: %s", id)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("id must not contain control characters: %q", id)
		}
	}
	if !idRegex.MatchString(id) {
		return errclass.ErrNameInvalid.WithMessagef("id must contain only letters, digits, '.', '_', '-': %s", id)
	}
	return nil
}

// IsWellFormed reports whether id passes ValidateID.
func IsWellFormed(id string) bool {
	return ValidateID(id) == nil
}
