package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/service/dao/flowctx"
	"github.com/viant/fluxflow/service/dao/flowctx/repotest"
)

func TestRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) flowctx.Repository {
		db, err := Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		repo, err := New(db)
		require.NoError(t, err)
		return repo
	})
}
