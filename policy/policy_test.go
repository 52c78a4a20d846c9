package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Permits(t *testing.T) {
	type testCase struct {
		name     string
		policy   *Policy
		action   string
		expected bool
	}
	tests := []testCase{
		{name: "nil policy", action: "HTTP_JOBER", expected: true},
		{name: "block wins", policy: &Policy{AllowList: []string{"http_jober"}, BlockList: []string{"HTTP_JOBER"}}, action: "HTTP_JOBER"},
		{name: "allow list miss", policy: &Policy{AllowList: []string{"ECHO_JOBER"}}, action: "SCRIPT_JOBER"},
		{name: "allow list hit", policy: &Policy{AllowList: []string{"ECHO_JOBER"}}, action: "echo_jober", expected: true},
		{name: "deny mode", policy: &Policy{Mode: ModeDeny}, action: "ECHO_JOBER"},
		{name: "ask without func", policy: &Policy{Mode: ModeAsk}, action: "ECHO_JOBER"},
		{
			name:     "ask approves",
			policy:   &Policy{Mode: ModeAsk, Ask: func(context.Context, string, map[string]interface{}, *Policy) bool { return true }},
			action:   "ECHO_JOBER",
			expected: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.policy.Permits(context.Background(), tc.action, nil))
		})
	}
}

func TestPolicy_Context(t *testing.T) {
	p := FromConfig(&Config{Mode: ModeAuto, BlockList: []string{"x"}})
	ctx := WithPolicy(context.Background(), p)
	assert.Same(t, p, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
	assert.Equal(t, &Config{Mode: ModeAuto, BlockList: []string{"x"}}, ToConfig(p))
	assert.Nil(t, ToConfig(nil))
}
