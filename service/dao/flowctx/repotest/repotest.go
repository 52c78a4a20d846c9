// Package repotest verifies flowctx.Repository implementations against one shared behaviour suite.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/dao"
	"github.com/viant/fluxflow/service/dao/flowctx"
)

// Run executes the suite; newRepository must return an empty repository on every call.
func Run(t *testing.T, newRepository func(t *testing.T) flowctx.Repository) {
	t.Run("save and get", func(t *testing.T) { testSaveAndGet(t, newRepository(t)) })
	t.Run("update status", func(t *testing.T) { testUpdateStatus(t, newRepository(t)) })
	t.Run("compare and save", func(t *testing.T) { testCompareAndSave(t, newRepository(t)) })
	t.Run("list", func(t *testing.T) { testList(t, newRepository(t)) })
	t.Run("concurrent transitions", func(t *testing.T) { testConcurrentTransitions(t, newRepository(t)) })
}

var base = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newRow(id, position string, status flow.Status, offset int) *flow.Context {
	return &flow.Context{
		ID:        id,
		StreamID:  "orders-1.0",
		TraceID:   "trace-1",
		Position:  position,
		BatchID:   "batch-1",
		Status:    status,
		Data:      flow.NewData(map[string]interface{}{"orderId": id}),
		CreatedAt: base.Add(time.Duration(offset) * time.Second),
	}
}

func testSaveAndGet(t *testing.T, repo flowctx.Repository) {
	ctx := context.Background()
	assert.ErrorIs(t, repo.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, repo.Save(ctx, &flow.Context{Status: flow.StatusNew}), dao.ErrInvalidID)

	require.NoError(t, repo.Save(ctx, newRow("c1", "N1", flow.StatusNew, 0), newRow("c2", "N1", flow.StatusNew, 1)))
	rows, err := repo.GetByIDs(ctx, []string{"c2", "missing", "c1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c2", rows[0].ID)
	assert.Equal(t, "c1", rows[1].ID)
	assert.Equal(t, "c1", rows[1].Data.BusinessData.GetString("orderId"))
	assert.True(t, base.Equal(rows[1].CreatedAt))
	assert.False(t, rows[1].UpdatedAt.IsZero())

	rows[0].Data.BusinessData.Set("orderId", "changed")
	again, err := repo.GetByIDs(ctx, []string{"c2"})
	require.NoError(t, err)
	assert.Equal(t, "c2", again[0].Data.BusinessData.GetString("orderId"))
}

func testUpdateStatus(t *testing.T, repo flowctx.Repository) {
	type testCase struct {
		name   string
		from   flow.Status
		to     flow.Status
		errIs  error
		expect flow.Status
	}
	tests := []testCase{
		{name: "forward", from: flow.StatusNew, to: flow.StatusPending, expect: flow.StatusPending},
		{name: "skip forward", from: flow.StatusPending, to: flow.StatusProcessing, expect: flow.StatusProcessing},
		{name: "redrive", from: flow.StatusRetryable, to: flow.StatusReady, expect: flow.StatusReady},
		{name: "terminate", from: flow.StatusReady, to: flow.StatusTerminate, expect: flow.StatusTerminate},
		{name: "backward", from: flow.StatusProcessing, to: flow.StatusReady, errIs: flow.ErrInvalidTransition, expect: flow.StatusProcessing},
		{name: "terminal", from: flow.StatusArchived, to: flow.StatusTerminate, errIs: flow.ErrInvalidTransition, expect: flow.StatusArchived},
	}
	ctx := context.Background()
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id := fmt.Sprintf("u%d", i)
			require.NoError(t, repo.Save(ctx, newRow(id, "N1", tc.from, i)))
			updated, err := repo.UpdateStatus(ctx, id, tc.to)
			if tc.errIs != nil {
				assert.ErrorIs(t, err, tc.errIs)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expect, updated.Status)
			}
			rows, err := repo.GetByIDs(ctx, []string{id})
			require.NoError(t, err)
			assert.Equal(t, tc.expect, rows[0].Status)
		})
	}
	_, err := repo.UpdateStatus(ctx, "missing", flow.StatusReady)
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func testCompareAndSave(t *testing.T, repo flowctx.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newRow("c1", "N1", flow.StatusProcessing, 0)))

	rows, err := repo.GetByIDs(ctx, []string{"c1"})
	require.NoError(t, err)
	row := rows[0]
	row.Status = flow.StatusArchived
	row.Data.BusinessData.Set("echo", "ok")
	require.NoError(t, repo.CompareAndSave(ctx, flow.StatusProcessing, row))

	rows, err = repo.GetByIDs(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.Equal(t, flow.StatusArchived, rows[0].Status)
	assert.Equal(t, "ok", rows[0].Data.BusinessData.GetString("echo"))

	stale := rows[0].Clone()
	stale.Status = flow.StatusError
	assert.ErrorIs(t, repo.CompareAndSave(ctx, flow.StatusProcessing, stale), flowctx.ErrStatusMismatch)

	require.NoError(t, repo.Save(ctx, newRow("c2", "N1", flow.StatusProcessing, 1)))
	backward := newRow("c2", "N1", flow.StatusNew, 1)
	assert.ErrorIs(t, repo.CompareAndSave(ctx, flow.StatusProcessing, backward), flow.ErrInvalidTransition)
	assert.ErrorIs(t, repo.CompareAndSave(ctx, flow.StatusNew, newRow("missing", "N1", flow.StatusNew, 0)), dao.ErrNotFound)
}

func testList(t *testing.T, repo flowctx.Repository) {
	ctx := context.Background()
	due := base.Add(time.Minute)
	later := base.Add(time.Hour)
	retryDue := newRow("r1", "N2", flow.StatusRetryable, 5)
	retryDue.NextAttemptAt = &due
	retryLater := newRow("r2", "N2", flow.StatusRetryable, 6)
	retryLater.NextAttemptAt = &later
	other := newRow("o1", "N1", flow.StatusPending, 7)
	other.TraceID = "trace-2"
	other.StreamID = "billing-1.0"
	require.NoError(t, repo.Save(ctx,
		newRow("p2", "N1", flow.StatusPending, 2),
		newRow("p1", "N1", flow.StatusPending, 1),
		newRow("a1", "N1", flow.StatusArchived, 0),
		retryDue, retryLater, other,
	))

	type testCase struct {
		name   string
		query  *flowctx.Query
		expect []string
	}
	tests := []testCase{
		{name: "all", query: nil, expect: []string{"a1", "p1", "p2", "r1", "r2", "o1"}},
		{name: "pending at node", query: &flowctx.Query{StreamID: "orders-1.0", Position: "N1", Statuses: []flow.Status{flow.StatusPending}}, expect: []string{"p1", "p2"}},
		{name: "trace", query: &flowctx.Query{TraceID: "trace-2"}, expect: []string{"o1"}},
		{name: "due retries", query: &flowctx.Query{Statuses: []flow.Status{flow.StatusRetryable}, DueBefore: &due}, expect: []string{"r1"}},
		{name: "limit", query: &flowctx.Query{StreamID: "orders-1.0", Limit: 2}, expect: []string{"a1", "p1"}},
		{name: "no match", query: &flowctx.Query{Position: "N9"}, expect: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := repo.List(ctx, tc.query)
			require.NoError(t, err)
			var ids []string
			for _, row := range rows {
				ids = append(ids, row.ID)
			}
			assert.Equal(t, tc.expect, ids)
		})
	}
}

func testConcurrentTransitions(t *testing.T, repo flowctx.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newRow("c1", "N1", flow.StatusProcessing, 0)))
	var wg sync.WaitGroup
	var mux sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		target := flow.StatusArchived
		if i%2 == 0 {
			target = flow.StatusTerminate
		}
		wg.Add(1)
		go func(target flow.Status) {
			defer wg.Done()
			if _, err := repo.UpdateStatus(ctx, "c1", target); err == nil {
				mux.Lock()
				succeeded++
				mux.Unlock()
			}
		}(target)
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	rows, err := repo.GetByIDs(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.True(t, rows[0].Status.Terminal())
}
