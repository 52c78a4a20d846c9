package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/task"
	"github.com/viant/fluxflow/service/task/memory"
)

func TestAutoResolve(t *testing.T) {
	type testCase struct {
		name     string
		taskType definition.TaskType
		decide   func(ctx context.Context, svc task.Service) func()
		expect   task.Status
	}
	tests := []testCase{
		{
			name:     "auto approve",
			taskType: definition.TaskApproval,
			decide: func(ctx context.Context, svc task.Service) func() {
				return task.AutoApprove(ctx, svc, 5*time.Millisecond)
			},
			expect: task.StatusResolved,
		},
		{
			name:     "auto fail",
			taskType: definition.TaskManual,
			decide: func(ctx context.Context, svc task.Service) func() {
				return task.AutoResolve(ctx, svc, func(*task.Task) (map[string]flow.Values, string) {
					return nil, "out of stock"
				}, 5*time.Millisecond)
			},
			expect: task.StatusFailed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			svc := memory.New()
			created := &task.Task{StreamID: "s-1", NodeID: "N2", Type: tc.taskType, Items: []*task.LineItem{{ContextID: "c1"}}}
			require.NoError(t, svc.Create(ctx, created))
			stop := tc.decide(ctx, svc)
			defer stop()
			closed, err := task.WaitForStatus(ctx, svc, created.ID, time.Second)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, closed.Status)
		})
	}
}

func TestWaitForStatus_Timeout(t *testing.T) {
	ctx := context.Background()
	svc := memory.New()
	created := &task.Task{StreamID: "s-1", NodeID: "N2", Type: definition.TaskManual, Items: []*task.LineItem{{ContextID: "c1"}}}
	require.NoError(t, svc.Create(ctx, created))
	_, err := task.WaitForStatus(ctx, svc, created.ID, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
