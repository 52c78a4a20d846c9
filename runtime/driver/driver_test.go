package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/dao"
	"github.com/viant/fluxflow/service/task"
)

func TestDriver_EchoThenManual(t *testing.T) {
	ctx := context.Background()
	def := newDefinition(
		[]*definition.Node{
			startNode(),
			stateNode("echo", &definition.Jober{Type: definition.JoberEcho}),
			manualNode("review", definition.TaskManual),
			endNode(),
		},
		edge("start", "echo"), edge("echo", "review"), edge("review", "end"),
	)
	h := newHarness(t, def)
	started, err := h.driver.Start(ctx, testStream, map[string]interface{}{"orderId": "o-1"})
	require.NoError(t, err)
	assert.Equal(t, "start", started.Position)
	assert.Equal(t, started.TraceID, started.Data.ContextData.GetString("traceId"))

	trace := h.trace(t, started.TraceID)
	assert.False(t, trace.Done())
	assert.Equal(t, []flow.Status{flow.StatusArchived}, statuses(trace.At("echo")))
	held := trace.At("review")
	require.Len(t, held, 1)
	assert.Equal(t, flow.StatusProcessing, held[0].Status)
	require.NotEmpty(t, held[0].TaskID)

	pending, err := h.tasks.ListPending(ctx, dao.NewParameter("nodeId", "review"))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, held[0].TaskID, pending[0].ID)
	assert.Equal(t, []string{held[0].ID}, pending[0].ContextIDs())
	assert.Equal(t, "o-1", pending[0].Items[0].Data.GetString("orderId"))

	_, err = h.tasks.Resolve(ctx, pending[0].ID, map[string]flow.Values{held[0].ID: {"checkedBy": "alice"}})
	require.NoError(t, err)

	trace = h.trace(t, started.TraceID)
	assert.True(t, trace.Done())
	ended := trace.At("end")
	require.Len(t, ended, 1)
	assert.Equal(t, flow.StatusArchived, ended[0].Status)
	assert.Equal(t, "alice", ended[0].Data.BusinessData.GetString("checkedBy"))
	assert.Equal(t, "o-1", ended[0].Data.BusinessData.GetString("orderId"))
	require.NotNil(t, trace.Progress)
	assert.Equal(t, 4, trace.Progress.Created)
	assert.Equal(t, 4, trace.Progress.Archived)
	h.contexts.assertMonotonic(t)
}

func TestDriver_Start(t *testing.T) {
	type testCase struct {
		name      string
		status    definition.Status
		streamID  string
		expectErr error
	}
	tests := []testCase{
		{name: "active definition", status: definition.StatusActive, streamID: testStream},
		{name: "inactive definition", status: definition.StatusInactive, streamID: testStream, expectErr: ErrInactive},
		{name: "unknown stream", status: definition.StatusActive, streamID: "missing-1.0", expectErr: dao.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			def := newDefinition([]*definition.Node{startNode(), endNode()}, edge("start", "end"))
			def.Status = tc.status
			h := newHarness(t, def)
			started, err := h.driver.Start(context.Background(), tc.streamID, nil)
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			trace := h.trace(t, started.TraceID)
			assert.True(t, trace.Done())
			assert.Len(t, trace.Rows, 2)
		})
	}
}

func TestDriver_ConditionFollowsFirstMatch(t *testing.T) {
	type testCase struct {
		name     string
		amount   int
		expected string
	}
	tests := []testCase{
		{name: "large amount takes first edge", amount: 20, expected: "large"},
		{name: "small amount falls through", amount: 5, expected: "small"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			def := newDefinition(
				[]*definition.Node{
					startNode(),
					{MetaID: "route", Type: definition.NodeTypeCondition, TriggerMode: definition.TriggerAuto},
					stateNode("large", nil),
					stateNode("small", nil),
				},
				edge("start", "route"), edge("route", "large", "amount > 10"), edge("route", "small"),
			)
			h := newHarness(t, def)
			started, err := h.driver.Start(context.Background(), testStream, map[string]interface{}{"amount": tc.amount})
			require.NoError(t, err)
			trace := h.trace(t, started.TraceID)
			assert.Len(t, trace.At(tc.expected), 1)
			assert.Len(t, trace.Rows, 3)
		})
	}
}

func TestDriver_ParallelFanOut(t *testing.T) {
	def := newDefinition(
		[]*definition.Node{
			startNode(),
			{MetaID: "fork", Type: definition.NodeTypeParallel, TriggerMode: definition.TriggerAuto},
			stateNode("a", nil),
			stateNode("b", nil),
		},
		edge("start", "fork"), edge("fork", "a"), edge("fork", "b"),
	)
	h := newHarness(t, def)
	started, err := h.driver.Start(context.Background(), testStream, map[string]interface{}{"items": []interface{}{"x"}})
	require.NoError(t, err)
	trace := h.trace(t, started.TraceID)
	a, b := trace.At("a"), trace.At("b")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, "fork", a[0].From)
	assert.NotEqual(t, a[0].BatchID, b[0].BatchID)
	assert.Equal(t, []interface{}{"x"}, b[0].Data.BusinessData["items"])
}

func TestDriver_Join(t *testing.T) {
	type testCase struct {
		name         string
		mode         definition.JoinMode
		joinRows     int
		joinArchived int
		endRows      int
	}
	tests := []testCase{
		{name: "all merges one row per branch", mode: definition.JoinAll, joinRows: 3, joinArchived: 3, endRows: 1},
		{name: "either forwards first arrival", mode: definition.JoinEither, joinRows: 2, joinArchived: 2, endRows: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			def := newDefinition(
				[]*definition.Node{
					startNode(),
					{MetaID: "fork", Type: definition.NodeTypeParallel, TriggerMode: definition.TriggerAuto},
					stateNode("a", &definition.Jober{Type: definition.JoberGenericable}),
					stateNode("b", nil),
					{MetaID: "join", Type: definition.NodeTypeJoin, TriggerMode: definition.TriggerAuto, Properties: map[string]interface{}{"mode": string(tc.mode)}},
					endNode(),
				},
				edge("start", "fork"), edge("fork", "a"), edge("fork", "b"),
				edge("a", "join"), edge("b", "join"), edge("join", "end"),
			)
			h := newHarness(t, def)
			started, err := h.driver.Start(context.Background(), testStream, map[string]interface{}{"orderId": "o-1"})
			require.NoError(t, err)
			trace := h.trace(t, started.TraceID)
			joined := trace.At("join")
			assert.Len(t, joined, tc.joinRows)
			archived := 0
			for _, row := range joined {
				if row.Status == flow.StatusArchived {
					archived++
				}
			}
			assert.Equal(t, tc.joinArchived, archived)
			ended := trace.At("end")
			require.Len(t, ended, tc.endRows)
			assert.Equal(t, "o-1", ended[0].Data.BusinessData.GetString("orderId"))
			if tc.mode == definition.JoinAll {
				assert.True(t, ended[0].Data.BusinessData.GetBool("handled"))
			}
			assert.True(t, trace.Done())
			group, err := h.driver.joins.Group(context.Background(), started.TraceID, "join")
			require.NoError(t, err)
			assert.Nil(t, group)
			h.contexts.assertMonotonic(t)
		})
	}
}

func TestDriver_Terminate(t *testing.T) {
	t.Run("cancels tasks of held rows", func(t *testing.T) {
		ctx := context.Background()
		def := newDefinition(
			[]*definition.Node{startNode(), manualNode("review", definition.TaskApproval), endNode()},
			edge("start", "review"), edge("review", "end"),
		)
		h := newHarness(t, def)
		started, err := h.driver.Start(ctx, testStream, nil)
		require.NoError(t, err)
		held := h.trace(t, started.TraceID).At("review")
		require.Len(t, held, 1)

		count, err := h.driver.Terminate(ctx, started.TraceID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		closed, err := h.tasks.Get(ctx, held[0].TaskID)
		require.NoError(t, err)
		assert.Equal(t, task.StatusCanceled, closed.Status)
		_, err = h.tasks.Resolve(ctx, held[0].TaskID, map[string]flow.Values{held[0].ID: {"approved": true}})
		assert.ErrorIs(t, err, task.ErrClosed)

		trace := h.trace(t, started.TraceID)
		assert.Equal(t, []flow.Status{flow.StatusTerminate}, statuses(trace.At("review")))
		assert.Empty(t, trace.At("end"))
		assert.Equal(t, 1, trace.Progress.Terminated)
	})

	t.Run("discards in-flight jober result", func(t *testing.T) {
		ctx := context.Background()
		def := newDefinition(
			[]*definition.Node{startNode(), stateNode("work", &definition.Jober{Type: definition.JoberGenericable}), endNode()},
			edge("start", "work"), edge("work", "end"),
		)
		h := newHarness(t, def)
		var terminated int
		h.operator.fn = func(ctx context.Context, batch []*flow.Context, _ int) error {
			var err error
			terminated, err = h.driver.Terminate(ctx, batch[0].TraceID)
			return err
		}
		started, err := h.driver.Start(ctx, testStream, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, terminated)
		trace := h.trace(t, started.TraceID)
		work := trace.At("work")
		require.Len(t, work, 1)
		assert.Equal(t, flow.StatusTerminate, work[0].Status)
		assert.False(t, work[0].Data.BusinessData.GetBool("handled"))
		assert.Empty(t, trace.At("end"))
		h.contexts.assertMonotonic(t)
	})
}

func TestDriver_Trace(t *testing.T) {
	h := newHarness(t, newDefinition([]*definition.Node{startNode()}))
	_, err := h.driver.Trace(context.Background(), "missing")
	assert.True(t, errors.Is(err, dao.ErrNotFound))
}

func TestDriver_JoinGroupKeptUntilTraceDone(t *testing.T) {
	ctx := context.Background()
	def := newDefinition(
		[]*definition.Node{
			startNode(),
			{MetaID: "fork", Type: definition.NodeTypeParallel, TriggerMode: definition.TriggerAuto},
			stateNode("a", nil),
			stateNode("b", nil),
			{MetaID: "join", Type: definition.NodeTypeJoin, TriggerMode: definition.TriggerAuto, Properties: map[string]interface{}{"mode": string(definition.JoinEither)}},
			manualNode("review", definition.TaskManual),
			endNode(),
		},
		edge("start", "fork"), edge("fork", "a"), edge("fork", "b"),
		edge("a", "join"), edge("b", "join"), edge("join", "review"), edge("review", "end"),
	)
	h := newHarness(t, def)
	started, err := h.driver.Start(ctx, testStream, nil)
	require.NoError(t, err)

	group, err := h.driver.joins.Group(ctx, started.TraceID, "join")
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.True(t, group.Done())

	pending, err := h.tasks.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = h.tasks.Resolve(ctx, pending[0].ID, nil)
	require.NoError(t, err)

	assert.True(t, h.trace(t, started.TraceID).Done())
	group, err = h.driver.joins.Group(ctx, started.TraceID, "join")
	require.NoError(t, err)
	assert.Nil(t, group)
}
