package jsonutil_test

import (
	"testing"

	"github.com/carewise/carestore/pkg/jsonutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalMarshal_SortsKeys(t *testing.T) {
	data, err := jsonutil.CanonicalMarshal(map[string]any{
		"zebra": 1,
		"apple": 2,
		"mango": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"apple":2,"mango":3,"zebra":1}`, string(data))
}

func TestCanonicalMarshal_Nested(t *testing.T) {
	data, err := jsonutil.CanonicalMarshal(map[string]any{
		"outer": map[string]any{"b": true, "a": nil},
		"list":  []any{"x", 1.5},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"list":["x",1.5],"outer":{"a":null,"b":true}}`, string(data))
}

func TestCanonicalMarshal_Deterministic(t *testing.T) {
	v := map[string]any{"k1": "v1", "k2": []any{1, 2, 3}, "k3": map[string]any{"n": 9}}

	first, err := jsonutil.CanonicalMarshal(v)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := jsonutil.CanonicalMarshal(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCanonicalMarshal_Struct(t *testing.T) {
	type rec struct {
		B string `json:"b"`
		A string `json:"a"`
	}
	data, err := jsonutil.CanonicalMarshal(rec{B: "2", A: "1"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"2"}`, string(data))
}
