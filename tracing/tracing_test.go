package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "span_test.txt")
	require.NoError(t, Init("fluxflow", "0.0.1", fname))

	ctx, span := StartSpan(context.Background(), "dispatch", "INTERNAL")
	span.WithAttributes(map[string]string{"node": "N1"})
	_, child := StartSpan(ctx, "operate", "CLIENT")
	EndSpan(child, errors.New("boom"))
	EndSpan(span, nil)

	current, ok := SpanFromContext(ctx)
	assert.True(t, ok)
	assert.NotNil(t, current)

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dispatch")
	assert.Contains(t, string(data), "operate")
}

func TestSpan_NilSafe(t *testing.T) {
	var span *Span
	assert.Nil(t, span.WithAttributes(map[string]string{"a": "b"}))
	span.SetStatus(errors.New("x"))
	span.SetStatusFromHTTPCode(500)
	EndSpan(span, nil)
	_, ok := SpanFromContext(context.Background())
	assert.False(t, ok)
}
