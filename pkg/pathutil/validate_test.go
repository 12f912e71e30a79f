package pathutil_test

import (
	"strings"
	"testing"

	"github.com/carewise/carestore/pkg/errclass"
	"github.com/carewise/carestore/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID_Valid(t *testing.T) {
	for _, id := range []string{
		"abc",
		"anon-2f1c9d3e-0000-4000-8000-000000000000",
		"user_42",
		"a.b-c_d",
	} {
		assert.NoError(t, pathutil.ValidateID(id), id)
	}
}

func TestValidateID_Invalid(t *testing.T) {
	for _, id := range []string{
		"",
		"..",
		"a/../b",
		"with/slash",
		`with\backslash`,
		"space here",
		"tab\there",
		"null\x00byte",
		strings.Repeat("x", pathutil.MaxIDLength+1),
	} {
		err := pathutil.ValidateID(id)
		require.Error(t, err, "%q should be rejected", id)
		assert.ErrorIs(t, err, errclass.ErrNameInvalid)
	}
}

func TestValidateID_RequiresNFCForm(t *testing.T) {
	// U+00C5 is the NFC form; the decomposed spelling (A + combining ring,
	// U+0041 U+030A) and the singleton U+212B ANGSTROM SIGN name the same
	// character with different bytes, so only the NFC form may become a
	// file name.
	assert.NoError(t, pathutil.ValidateID("unit-Å"))

	for _, id := range []string{"unit-Å", "unit-Å"} {
		err := pathutil.ValidateID(id)
		require.Error(t, err, "%q should be rejected", id)
		assert.ErrorIs(t, err, errclass.ErrNameInvalid)
	}
}

func TestValidateID_UnicodeLetters(t *testing.T) {
	for _, id := range []string{"café", "用户-42"} {
		assert.NoError(t, pathutil.ValidateID(id), id)
	}
}

func TestIsWellFormed(t *testing.T) {
	assert.True(t, pathutil.IsWellFormed("session-1"))
	assert.False(t, pathutil.IsWellFormed("../escape"))
}
