package script

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

func TestOperator_Operate(t *testing.T) {
	type testCase struct {
		name      string
		spec      *definition.ScriptSpec
		expected  flow.Values
		expectErr bool
	}
	tests := []testCase{
		{
			name:     "js mutates dollar",
			spec:     &definition.ScriptSpec{Language: "js", Source: "$.total = $.amount * 2; $.tags.push('js');"},
			expected: flow.Values{"amount": 5.0, "total": 10.0, "tags": []interface{}{"a", "js"}},
		},
		{
			name:     "js replaces dollar",
			spec:     &definition.ScriptSpec{Language: "js", Source: "$ = {ok: businessData.amount > 1};"},
			expected: flow.Values{"ok": true},
		},
		{
			name:     "js null keeps data",
			spec:     &definition.ScriptSpec{Language: "JS", Source: "$ = null;"},
			expected: flow.Values{"amount": 5, "tags": []interface{}{"a"}},
		},
		{
			name:     "lua returns table",
			spec:     &definition.ScriptSpec{Language: "lua", Source: "return {total = businessData.amount * 2, first = businessData.tags[1], list = {1, 2}}"},
			expected: flow.Values{"total": 10, "first": "a", "list": []interface{}{1, 2}},
		},
		{
			name:     "lua scalar",
			spec:     &definition.ScriptSpec{Language: "lua", Source: "return businessData.amount + 0.5"},
			expected: flow.Values{"result": 5.5},
		},
		{
			name:     "lua nil keeps data",
			spec:     &definition.ScriptSpec{Language: "lua", Source: "local x = 1"},
			expected: flow.Values{"amount": 5, "tags": []interface{}{"a"}},
		},
		{
			name:      "lua sandbox",
			spec:      &definition.ScriptSpec{Language: "lua", Source: "return os.time()"},
			expectErr: true,
		},
		{
			name:      "js error",
			spec:      &definition.ScriptSpec{Language: "js", Source: "throw new Error('bad')"},
			expectErr: true,
		},
		{
			name:      "unsupported language",
			spec:      &definition.ScriptSpec{Language: "python", Source: "x"},
			expectErr: true,
		},
		{
			name:      "empty source",
			spec:      &definition.ScriptSpec{Language: "js"},
			expectErr: true,
		},
	}
	operator := New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			batch := []*flow.Context{{ID: "c1", Data: flow.NewData(map[string]interface{}{"amount": 5, "tags": []interface{}{"a"}})}}
			err := operator.Operate(context.Background(), batch, &definition.Jober{Type: definition.JoberScript, Script: tc.spec})
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, tc.expected, batch[0].Data.BusinessData)
		})
	}
}

func TestJS_Interrupt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := (&JS{}).Run(ctx, "while (true) {}", flow.Values{})
	require.Error(t, err)
}

func TestLua_CompileError(t *testing.T) {
	_, err := NewLua().Run(context.Background(), "return {", flow.Values{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLuaLoad))
}
