package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/task"
	taskmemory "github.com/viant/fluxflow/service/task/memory"
)

var errUnavailable = errors.New("unavailable")

// rejectingTasks fails every task creation
type rejectingTasks struct {
	task.Service
}

func (r *rejectingTasks) Create(context.Context, *task.Task) error {
	return errUnavailable
}

// flakyPublisher fails while down is set and dispatches inline otherwise
type flakyPublisher struct {
	mux    sync.Mutex
	driver *Driver
	down   bool
}

func (p *flakyPublisher) setDown(down bool) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.down = down
}

func (p *flakyPublisher) Publish(ctx context.Context, event *flow.TaskCreated) error {
	p.mux.Lock()
	down := p.down
	p.mux.Unlock()
	if down {
		return errUnavailable
	}
	return p.driver.HandleTaskCreated(ctx, event)
}

func TestDriver_TaskCreationFailure(t *testing.T) {
	ctx := context.Background()
	def := newDefinition([]*definition.Node{startNode(), manualNode("review", definition.TaskManual), endNode()}, edge("start", "review"), edge("review", "end"))
	def.ExceptionFitables = []string{"ops.alert"}
	h := newHarness(t, def, WithTasks(&rejectingTasks{Service: taskmemory.New()}))

	started, err := h.driver.Start(ctx, testStream, map[string]interface{}{"orderId": "o-1"})
	require.NoError(t, err)
	trace := h.trace(t, started.TraceID)
	rows := trace.At("review")
	require.Len(t, rows, 1)
	assert.Equal(t, flow.StatusError, rows[0].Status)
	assert.Contains(t, rows[0].Error, errUnavailable.Error())
	assert.Equal(t, 1, h.handlers.count("ops.alert"))
	assert.Equal(t, 1, trace.Progress.Failed)
	assert.True(t, trace.Done())
	h.contexts.assertMonotonic(t)
}

func TestDriver_TaskCreatedPublishFailure(t *testing.T) {
	type testCase struct {
		name       string
		maxRetries int
		expected   flow.Status
		alerts     int
	}
	tests := []testCase{
		{name: "redriven once the pool recovers", maxRetries: 3, expected: flow.StatusArchived},
		{name: "escalated without retry budget", maxRetries: 0, expected: flow.StatusError, alerts: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			work := stateNode("work", &definition.Jober{Type: definition.JoberGenericable, Exceptions: []string{"ops.alert"}})
			def := newDefinition([]*definition.Node{startNode(), work, endNode()}, edge("start", "work"), edge("work", "end"))
			publisher := &flakyPublisher{down: true}
			h := newHarness(t, def,
				WithTaskCreatedPublisher(publisher),
				WithClock(func() time.Time { return now }),
				WithRetryPolicy(RetryPolicy{MaxRetries: tc.maxRetries, InitialInterval: time.Second, MaxInterval: time.Minute, Multiplier: 2}),
			)
			publisher.driver = h.driver

			started, err := h.driver.Start(ctx, testStream, nil)
			require.NoError(t, err)
			assert.Equal(t, 0, h.operator.calls())
			rows := h.trace(t, started.TraceID).At("work")
			require.Len(t, rows, 1)
			if tc.expected == flow.StatusError {
				assert.Equal(t, flow.StatusError, rows[0].Status)
				assert.Equal(t, tc.alerts, h.handlers.count("ops.alert"))
				return
			}
			require.Equal(t, flow.StatusRetryable, rows[0].Status)

			publisher.setDown(false)
			now = now.Add(time.Hour)
			count, err := h.driver.Redrive(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
			trace := h.trace(t, started.TraceID)
			assert.Equal(t, tc.expected, trace.At("work")[0].Status)
			assert.Len(t, trace.At("end"), 1)
			assert.Equal(t, 1, h.operator.calls())
			assert.Equal(t, tc.alerts, h.handlers.count("ops.alert"))
			h.contexts.assertMonotonic(t)
		})
	}
}
