package yml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSON(t *testing.T) {
	type testCase struct {
		name     string
		input    string
		expected string
		hasError bool
	}
	tests := []testCase{
		{
			name:     "mapping with scalars",
			input:    "metaId: m1\nversion: \"1.0\"\ncount: 2\nratio: 0.5\nactive: true\nempty: null\n",
			expected: `{"active":true,"count":2,"empty":null,"metaId":"m1","ratio":0.5,"version":"1.0"}`,
		},
		{
			name:     "sequence of maps",
			input:    "nodes:\n  - id: n1\n    type: start\n  - id: n2\n",
			expected: `{"nodes":[{"id":"n1","type":"start"},{"id":"n2"}]}`,
		},
		{name: "empty document", input: "", hasError: true},
		{name: "invalid", input: "a: [1, 2", hasError: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := ToJSON([]byte(tc.input))
			if tc.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(actual))
		})
	}
}

func TestLookup(t *testing.T) {
	node, err := Decode([]byte("MetaId: m1\nversion: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "m1", node.Lookup("metaId").Interface())
	assert.Equal(t, 2, node.Lookup("VERSION").Interface())
	assert.Nil(t, node.Lookup("missing"))
}
