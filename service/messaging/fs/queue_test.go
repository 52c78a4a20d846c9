package fs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/fluxflow/model/flow"
)

func newQueue(t *testing.T, maxRetries int) *Queue[flow.TaskCreated] {
	queue, err := NewQueue[flow.TaskCreated](afs.New(), QueueConfig{
		BasePath:     t.TempDir(),
		MaxRetries:   maxRetries,
		RetryDelay:   20 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return queue
}

func TestQueue_FIFO(t *testing.T) {
	queue := newQueue(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, node := range []string{"N1", "N2", "N3"} {
		require.NoError(t, queue.Publish(ctx, &flow.TaskCreated{StreamID: "s-1", NodeID: node, ContextIDs: []string{"c-" + node}}))
	}
	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	for _, node := range []string{"N1", "N2", "N3"} {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, node, message.T().NodeID)
		assert.Equal(t, []string{"c-" + node}, message.T().ContextIDs)
		require.NoError(t, message.Ack())
		assert.True(t, errors.Is(message.Ack(), ErrAlreadyProcessed))
	}
	pending, err = queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestQueue_RetryThenDeadLetter(t *testing.T) {
	queue := newQueue(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, queue.Publish(ctx, &flow.TaskCreated{StreamID: "s-1", NodeID: "N1"}))

	first, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Attempt())
	started := time.Now()
	require.NoError(t, first.Nack(errors.New("boom")))

	second, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 20*time.Millisecond)
	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, 1, second.Attempt())
	require.NoError(t, second.Nack(errors.New("boom")))

	letters, err := queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "N1", letters[0].NodeID)

	emptyCtx, emptyCancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer emptyCancel()
	_, err = queue.Consume(emptyCtx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
