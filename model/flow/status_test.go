package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransit(t *testing.T) {
	type testCase struct {
		from     Status
		to       Status
		expected bool
	}
	tests := []testCase{
		{StatusNew, StatusPending, true},
		{StatusNew, StatusReady, true},
		{StatusPending, StatusReady, true},
		{StatusReady, StatusProcessing, true},
		{StatusProcessing, StatusArchived, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusRetryable, true},
		{StatusPending, StatusError, true},
		{StatusRetryable, StatusReady, true},
		{StatusRetryable, StatusTerminate, true},
		{StatusRetryable, StatusProcessing, false},
		{StatusRetryable, StatusError, false},
		{StatusReady, StatusPending, false},
		{StatusProcessing, StatusReady, false},
		{StatusArchived, StatusReady, false},
		{StatusArchived, StatusTerminate, false},
		{StatusError, StatusRetryable, false},
		{StatusTerminate, StatusArchived, false},
		{StatusNew, StatusTerminate, true},
		{StatusProcessing, StatusTerminate, true},
		{StatusNew, Status("BOGUS"), false},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.expected, CanTransit(tc.from, tc.to))
			err := Transit(tc.from, tc.to)
			assert.Equal(t, !tc.expected, errors.Is(err, ErrInvalidTransition))
		})
	}
}
