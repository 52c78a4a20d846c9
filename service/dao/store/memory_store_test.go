package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/service/dao"
)

type record struct {
	ID    string
	Owner string
	Tags  []string
}

func newStore() *MemoryStore[string, record] {
	return NewMemoryStore[string, record](func(r *record) string { return r.ID },
		WithClone[string, record](func(r *record) *record {
			c := *r
			c.Tags = append([]string(nil), r.Tags...)
			return &c
		}),
		WithAttributes[string, record](func(r *record) map[string]string {
			return map[string]string{"owner": r.Owner}
		}),
		WithOrder[string, record](func(a, b *record) bool { return a.ID < b.ID }),
	)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	assert.ErrorIs(t, s.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, s.Save(ctx, &record{}), dao.ErrInvalidID)

	original := &record{ID: "b", Owner: "ops", Tags: []string{"x"}}
	require.NoError(t, s.Save(ctx, original))
	require.NoError(t, s.Save(ctx, &record{ID: "a", Owner: "finance"}))
	original.Tags[0] = "mutated"

	loaded, err := s.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, loaded.Tags)

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	owned, err := s.List(ctx, dao.NewParameter("owner", "ops"))
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "b", owned[0].ID)

	failure := errors.New("rejected")
	_, err = s.Update(ctx, "b", func(r *record) error {
		r.Owner = "changed"
		return failure
	})
	assert.ErrorIs(t, err, failure)
	updated, err := s.Update(ctx, "b", func(r *record) error {
		r.Owner = "support"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "support", updated.Owner)
	loaded, _ = s.Load(ctx, "b")
	assert.Equal(t, "support", loaded.Owner)

	require.NoError(t, s.Delete(ctx, "b"))
	assert.ErrorIs(t, s.Delete(ctx, "b"), dao.ErrNotFound)
}
