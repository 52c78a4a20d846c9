package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/service/messaging"
	"go.uber.org/zap"
)

// Handler processes one event synchronously; an error nacks the message
type Handler[T any] func(ctx context.Context, event *T) error

// KeyFunc returns the routing key of an event
type KeyFunc[T any] func(event *T) string

// Stats represents pool counters
type Stats struct {
	Name      string `json:"name"`
	Workers   int    `json:"workers"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
}

// Pool consumes a queue and runs the handler on a fixed number of workers.
// Events sharing a routing key always run on the same worker, one at a time.
type Pool[T any] struct {
	name      string
	workers   int
	queue     messaging.Queue[T]
	handler   Handler[T]
	keyOf     KeyFunc[T]
	ring      *ring
	lanes     []chan messaging.Message[T]
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   int32
	processed int64
	failed    int64
}

// NewPool creates a pool; it does not consume until Start
func NewPool[T any](name string, workers int, queue messaging.Queue[T], keyOf KeyFunc[T], handler Handler[T]) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	return &Pool[T]{
		name:    name,
		workers: workers,
		queue:   queue,
		handler: handler,
		keyOf:   keyOf,
		ring:    newRing(name, workers),
	}
}

// Name returns pool name
func (p *Pool[T]) Name() string {
	return p.name
}

// Publish enqueues an event
func (p *Pool[T]) Publish(ctx context.Context, event *T) error {
	return p.queue.Publish(ctx, event)
}

// Lane returns the worker index serving key
func (p *Pool[T]) Lane(key string) int {
	return p.ring.lane(key)
}

// Start launches the consumer and workers
func (p *Pool[T]) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return fmt.Errorf("pool %v already started", p.name)
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.lanes = make([]chan messaging.Message[T], p.workers)
	for i := range p.lanes {
		p.lanes[i] = make(chan messaging.Message[T])
		p.wg.Add(1)
		go p.work(ctx, i, p.lanes[i])
	}
	p.wg.Add(1)
	go p.consume(ctx)
	logger.Info("pool started", zap.String("pool", p.name), zap.Int("workers", p.workers))
	return nil
}

// Stop cancels consumption and waits for in-flight handlers
func (p *Pool[T]) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	logger.Info("pool stopped", zap.String("pool", p.name))
}

// Stats returns pool counters
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Name:      p.name,
		Workers:   p.workers,
		Processed: atomic.LoadInt64(&p.processed),
		Failed:    atomic.LoadInt64(&p.failed),
	}
}

func (p *Pool[T]) consume(ctx context.Context) {
	defer p.wg.Done()
	defer func() {
		for _, lane := range p.lanes {
			close(lane)
		}
	}()
	for {
		msg, err := p.queue.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			logger.Warn("failed to consume message", zap.String("pool", p.name), zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		lane := p.lanes[p.Lane(p.keyOf(msg.T()))]
		select {
		case lane <- msg:
		case <-ctx.Done():
			_ = msg.Nack(ctx.Err())
			return
		}
	}
}

func (p *Pool[T]) work(ctx context.Context, id int, lane chan messaging.Message[T]) {
	defer p.wg.Done()
	for msg := range lane {
		if err := p.handle(ctx, msg); err != nil {
			atomic.AddInt64(&p.failed, 1)
			logger.Warn("event handler failed",
				zap.String("pool", p.name),
				zap.Int("worker", id),
				zap.String("message", msg.ID()),
				zap.Int("attempt", msg.Attempt()),
				zap.Error(err))
			if nErr := msg.Nack(err); nErr != nil {
				logger.Error("failed to nack message", zap.String("pool", p.name), zap.Error(nErr))
			}
			continue
		}
		atomic.AddInt64(&p.processed, 1)
		if err := msg.Ack(); err != nil {
			logger.Error("failed to ack message", zap.String("pool", p.name), zap.Error(err))
		}
	}
}

func (p *Pool[T]) handle(ctx context.Context, msg messaging.Message[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler(ctx, msg.T())
}
