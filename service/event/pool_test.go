package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/messaging"
	"github.com/viant/fluxflow/service/messaging/fs"
	"github.com/viant/fluxflow/service/messaging/memory"
)

func streamKey(event *flow.TaskCreated) string {
	return event.StreamID
}

func TestPool_SerializesPerKey(t *testing.T) {
	queue := memory.NewQueue[flow.TaskCreated](memory.Config{MaxRetries: 3, RetryDelay: time.Millisecond, DeadLetter: true})
	var mux sync.Mutex
	active := map[string]int{}
	lanes := map[string]map[int]bool{}
	overlap := false
	var handled sync.WaitGroup
	pool := NewPool[flow.TaskCreated](TaskCreatedPool, 4, queue, streamKey, nil)
	pool.handler = func(ctx context.Context, event *flow.TaskCreated) error {
		defer handled.Done()
		mux.Lock()
		active[event.StreamID]++
		if active[event.StreamID] > 1 {
			overlap = true
		}
		if lanes[event.StreamID] == nil {
			lanes[event.StreamID] = map[int]bool{}
		}
		lanes[event.StreamID][pool.Lane(event.StreamID)] = true
		mux.Unlock()
		time.Sleep(time.Millisecond)
		mux.Lock()
		active[event.StreamID]--
		mux.Unlock()
		return nil
	}
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()
	assert.Error(t, pool.Start(ctx))

	for i := 0; i < 40; i++ {
		handled.Add(1)
		require.NoError(t, pool.Publish(ctx, &flow.TaskCreated{StreamID: fmt.Sprintf("s-%d", i%5), NodeID: "N1"}))
	}
	handled.Wait()
	drainCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, queue.Drain(drainCtx))

	assert.False(t, overlap)
	for stream, used := range lanes {
		assert.Len(t, used, 1, stream)
	}
	stats := pool.Stats()
	assert.Equal(t, int64(40), stats.Processed)
	assert.Equal(t, 4, stats.Workers)
}

func TestPool_NackRedelivers(t *testing.T) {
	type testCase struct {
		name      string
		handler   func(attempt int) error
		processed int64
		failed    int64
		dlq       int
	}
	tests := []testCase{
		{
			name: "recovers after failure",
			handler: func(attempt int) error {
				if attempt == 0 {
					return errors.New("store unavailable")
				}
				return nil
			},
			processed: 1,
			failed:    1,
		},
		{
			name:    "panics are failures",
			handler: func(attempt int) error { panic("boom") },
			failed:  2,
			dlq:     1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			queue := memory.NewQueue[flow.Callback](memory.Config{MaxRetries: 1, RetryDelay: time.Millisecond, DeadLetter: true})
			var mux sync.Mutex
			attempts := 0
			pool := NewPool[flow.Callback](CallbackPool, 2, queue, func(event *flow.Callback) string { return event.StreamID }, func(ctx context.Context, event *flow.Callback) error {
				mux.Lock()
				attempt := attempts
				attempts++
				mux.Unlock()
				return tc.handler(attempt)
			})
			ctx := context.Background()
			require.NoError(t, pool.Start(ctx))
			require.NoError(t, pool.Publish(ctx, &flow.Callback{StreamID: "s-1", TaskID: "t1"}))
			drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			require.NoError(t, queue.Drain(drainCtx))
			pool.Stop()
			stats := pool.Stats()
			assert.Equal(t, tc.processed, stats.Processed)
			assert.Equal(t, tc.failed, stats.Failed)
			assert.Equal(t, tc.dlq, queue.DLQSize())
		})
	}
}

func TestService_QueueOf(t *testing.T) {
	type testCase struct {
		name      string
		vendor    messaging.Vendor
		options   []Option
		expectErr bool
	}
	dir := t.TempDir()
	tests := []testCase{
		{name: "memory", vendor: messaging.VendorMemory},
		{
			name:   "fs",
			vendor: messaging.VendorFS,
			options: []Option{WithFS(afs.New()), WithNewFsQueueConfig(func(name string) fs.QueueConfig {
				cfg := fs.DefaultConfig()
				cfg.BasePath = dir + "/" + name
				cfg.PollInterval = time.Millisecond
				return cfg
			})},
		},
		{name: "unsupported", vendor: "kafka", expectErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, err := New(tc.vendor, tc.options...)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			queue, err := QueueOf[flow.TaskCreated](srv, TaskCreatedPool)
			require.NoError(t, err)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			require.NoError(t, queue.Publish(ctx, &flow.TaskCreated{StreamID: "s-1"}))
			msg, err := queue.Consume(ctx)
			require.NoError(t, err)
			assert.Equal(t, "s-1", msg.T().StreamID)
			require.NoError(t, msg.Ack())
		})
	}
}
