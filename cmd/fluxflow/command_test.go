package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	type testCase struct {
		name      string
		args      []string
		contains  []string
		expectErr bool
	}
	tests := []testCase{
		{name: "compile", args: []string{"compile", "../../testdata/orders.json"}, contains: []string{`"metaId": "orders"`, `"APPROVAL_TASK"`}},
		{name: "lookup by name", args: []string{"lookup", "../../testdata/orders.json", "address"}, contains: []string{"Type-1\torder\n", "Type-12\taddress\n"}},
		{name: "lookup missing", args: []string{"lookup", "../../testdata/orders.json", "missing"}, expectErr: true},
		{name: "compile missing file", args: []string{"compile", "missing.json"}, expectErr: true},
		{name: "compile arguments", args: []string{"compile"}, expectErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			cmd := newRootCommand(out)
			cmd.SetArgs(tc.args)
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, expected := range tc.contains {
				assert.Contains(t, out.String(), expected)
			}
		})
	}
}
