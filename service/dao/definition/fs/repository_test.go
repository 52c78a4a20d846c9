package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/service/compiler"
	"github.com/viant/fluxflow/service/dao"
	"github.com/viant/fluxflow/service/dao/definition"
)

const echoDocument = `{
  "metaId": "echo",
  "version": "1.0",
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "N1", "type": "state", "jober": {"type": "ECHO_JOBER"}},
    {"id": "end", "type": "end"},
    {"id": "e0", "type": "event", "fromShape": "start", "toShape": "N1"},
    {"id": "e1", "type": "event", "fromShape": "N1", "toShape": "end"}
  ]
}`

const yamlDocument = `metaId: review
version: "2"
status: inactive
nodes:
  - id: start
    type: start
  - id: end
    type: end
  - id: e0
    type: event
    fromShape: start
    toShape: end
`

func TestRepository(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review-2.yaml"), []byte(yamlDocument), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken-1.json"), []byte(`{"metaId":`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	repo, err := New(dir, WithTTL(time.Minute))
	require.NoError(t, err)

	compiled, err := compiler.Compile([]byte(echoDocument))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, compiled))
	require.NoError(t, repo.Save(ctx, compiled))
	_, err = os.Stat(filepath.Join(dir, "echo-1.0.json"))
	require.NoError(t, err)

	reopened, err := New(dir)
	require.NoError(t, err)
	loaded, err := reopened.FindByMetaIDAndVersion(ctx, "echo", "1.0")
	require.NoError(t, err)
	assert.NotSame(t, compiled, loaded)
	assert.True(t, compiled.Equal(loaded))

	review, err := reopened.FindByStreamID(ctx, "review-2")
	require.NoError(t, err)
	assert.False(t, review.Active())

	_, err = reopened.FindByStreamID(ctx, "missing-1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
	_, err = reopened.FindByStreamID(ctx, "broken-1")
	assert.Error(t, err)

	list, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "echo-1.0", list[0].StreamID())
	assert.Equal(t, "review-2", list[1].StreamID())

	active, err := reopened.List(ctx, dao.NewParameter("status", "ACTIVE"))
	require.NoError(t, err)
	require.Len(t, active, 1)

	changed, err := compiler.Compile([]byte(echoDocument[:len(echoDocument)-1] + `, "name": "changed"}`))
	require.NoError(t, err)
	assert.ErrorIs(t, reopened.Save(ctx, changed), definition.ErrConflict)

	noSource := *compiled
	noSource.Source = nil
	noSource.Version = "9"
	assert.Error(t, reopened.Save(ctx, &noSource))
}
