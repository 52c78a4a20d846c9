package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDAO(t *testing.T) {
	dao := NewMemoryDAO()
	ctx := context.Background()

	g := NewGroup("t1", "J", ModeAll, []string{"A", "B"})
	assert.NoError(t, dao.Save(ctx, g))

	loaded, _ := dao.Load(ctx, g.ID)
	assert.Equal(t, g, loaded)
	loaded.Sources[0] = "changed"
	again, _ := dao.Load(ctx, g.ID)
	assert.Equal(t, "A", again.Sources[0])

	list, _ := dao.List(ctx)
	assert.Len(t, list, 1)

	assert.NoError(t, dao.Delete(ctx, g.ID))
	loaded, _ = dao.Load(ctx, g.ID)
	assert.Nil(t, loaded)
}

func TestTracker_Arrive(t *testing.T) {
	type arrival struct {
		source  string
		id      string
		members []string
		discard bool
	}
	type testCase struct {
		name     string
		mode     Mode
		sources  []string
		arrivals []arrival
		waiting  int
	}
	tests := []testCase{
		{
			name:    "all waits for every branch",
			mode:    ModeAll,
			sources: []string{"A", "B"},
			arrivals: []arrival{
				{source: "B", id: "b1"},
				{source: "B", id: "b2"},
				{source: "A", id: "a1", members: []string{"a1", "b1"}},
				{source: "A", id: "a2", members: []string{"a2", "b2"}},
			},
		},
		{
			name:    "all keeps leftovers",
			mode:    ModeAll,
			sources: []string{"A", "B", "C"},
			arrivals: []arrival{
				{source: "A", id: "a1"},
				{source: "C", id: "c1"},
			},
			waiting: 2,
		},
		{
			name:    "either forwards first",
			mode:    ModeEither,
			sources: []string{"A", "B"},
			arrivals: []arrival{
				{source: "B", id: "b1", members: []string{"b1"}},
				{source: "A", id: "a1", discard: true},
				{source: "B", id: "b2", discard: true},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			tracker := NewTracker(nil)
			for _, a := range tc.arrivals {
				outcome, err := tracker.Arrive(ctx, "t1", "J", tc.mode, tc.sources, a.source, a.id)
				require.NoError(t, err)
				assert.Equal(t, a.members, outcome.Members, a.id)
				assert.Equal(t, a.discard, outcome.Discard, a.id)
				assert.Equal(t, len(a.members) > 0, outcome.Ready())
			}
			group, err := tracker.Group(ctx, "t1", "J")
			require.NoError(t, err)
			assert.Equal(t, tc.waiting, group.Waiting())

			require.NoError(t, tracker.Release(ctx, "t1"))
			group, err = tracker.Group(ctx, "t1", "J")
			require.NoError(t, err)
			assert.Nil(t, group)
		})
	}
}

func TestTracker_Forget(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(nil)
	for _, nodeID := range []string{"J1", "J2"} {
		_, err := tracker.Arrive(ctx, "t1", nodeID, ModeEither, []string{"A", "B"}, "A", "a1")
		require.NoError(t, err)
	}
	_, err := tracker.Arrive(ctx, "t2", "J1", ModeEither, []string{"A", "B"}, "A", "a2")
	require.NoError(t, err)

	require.NoError(t, tracker.Forget(ctx, "t1", "J1", "J2", "missing"))
	for _, nodeID := range []string{"J1", "J2"} {
		group, err := tracker.Group(ctx, "t1", nodeID)
		require.NoError(t, err)
		assert.Nil(t, group, nodeID)
	}
	group, err := tracker.Group(ctx, "t2", "J1")
	require.NoError(t, err)
	assert.NotNil(t, group)
}
