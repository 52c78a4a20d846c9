package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	model "github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/service/dao"
	"github.com/viant/fluxflow/service/dao/definition"
)

func newDefinition(metaID, version string, status model.Status) *model.Definition {
	return &model.Definition{
		ID:      model.StreamID(metaID, version),
		MetaID:  metaID,
		Version: version,
		Status:  status,
		Nodes:   []*model.Node{{MetaID: "start", Type: model.NodeTypeStart}},
	}
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo := New()

	assert.ErrorIs(t, repo.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, repo.Save(ctx, &model.Definition{MetaID: "orders"}), dao.ErrInvalidID)

	v1 := newDefinition("orders", "1.0", model.StatusActive)
	require.NoError(t, repo.Save(ctx, v1))
	require.NoError(t, repo.Save(ctx, newDefinition("orders", "1.0", model.StatusActive)))
	require.NoError(t, repo.Save(ctx, newDefinition("orders", "2.0", model.StatusInactive)))
	require.NoError(t, repo.Save(ctx, newDefinition("billing", "1.0", model.StatusActive)))

	changed := newDefinition("orders", "1.0", model.StatusActive)
	changed.Name = "renamed"
	assert.ErrorIs(t, repo.Save(ctx, changed), definition.ErrConflict)

	found, err := repo.FindByStreamID(ctx, "orders-1.0")
	require.NoError(t, err)
	assert.Same(t, v1, found)

	found, err = repo.FindByMetaIDAndVersion(ctx, "orders", "2.0")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, found.Status)

	_, err = repo.FindByStreamID(ctx, "orders-3.0")
	assert.ErrorIs(t, err, dao.ErrNotFound)
	_, err = repo.FindByMetaIDAndVersion(ctx, "", "1.0")
	assert.ErrorIs(t, err, dao.ErrInvalidID)

	type testCase struct {
		name       string
		parameters []*dao.Parameter
		expect     []string
	}
	tests := []testCase{
		{name: "all", expect: []string{"billing-1.0", "orders-1.0", "orders-2.0"}},
		{name: "by meta id", parameters: []*dao.Parameter{dao.NewParameter("metaId", "orders")}, expect: []string{"orders-1.0", "orders-2.0"}},
		{name: "active", parameters: []*dao.Parameter{dao.NewParameter("status", "ACTIVE")}, expect: []string{"billing-1.0", "orders-1.0"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			list, err := repo.List(ctx, tc.parameters...)
			require.NoError(t, err)
			var ids []string
			for _, d := range list {
				ids = append(ids, d.StreamID())
			}
			assert.Equal(t, tc.expect, ids)
		})
	}
}
