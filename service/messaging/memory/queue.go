// Package memory provides an in-process queue with delayed redelivery and a dead letter list.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/fluxflow/service/messaging"
)

// ErrAlreadyProcessed is returned when a message is acked or nacked twice
var ErrAlreadyProcessed = errors.New("message already processed")

// Config for memory queue implementation
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
	DeadLetter bool
	// QueueBuffer is the initial backlog capacity; the backlog grows past it so publishers never block
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 1024,
	}
}

// Message represents an in-memory delivery
type Message[T any] struct {
	id        string
	payload   T
	queue     *Queue[T]
	attempt   int
	mu        sync.Mutex
	processed bool
}

func (m *Message[T]) ID() string {
	return m.id
}

func (m *Message[T]) Attempt() int {
	return m.attempt
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	if !m.markProcessed() {
		return ErrAlreadyProcessed
	}
	m.queue.inflight.Done()
	return nil
}

// Nack schedules redelivery after RetryDelay or moves the message to the dead letter list
func (m *Message[T]) Nack(err error) error {
	if !m.markProcessed() {
		return ErrAlreadyProcessed
	}
	q := m.queue
	if m.attempt < q.config.MaxRetries {
		next := &Message[T]{id: m.id, payload: m.payload, queue: q, attempt: m.attempt + 1}
		time.AfterFunc(q.config.RetryDelay, func() {
			q.enqueue(next)
		})
		return nil
	}
	if q.config.DeadLetter {
		q.dlqMu.Lock()
		q.dlq = append(q.dlq, m)
		q.dlqMu.Unlock()
	}
	q.inflight.Done()
	return nil
}

func (m *Message[T]) markProcessed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return false
	}
	m.processed = true
	return true
}

// Queue implements an in-memory messaging.Queue. Consumers may publish to the queue they consume.
type Queue[T any] struct {
	mu       sync.Mutex
	backlog  []*Message[T]
	ready    chan struct{}
	dlq      []*Message[T]
	config   Config
	dlqMu    sync.Mutex
	inflight sync.WaitGroup
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		backlog: make([]*Message[T], 0, config.QueueBuffer),
		ready:   make(chan struct{}, 1),
		config:  config,
	}
}

// Publish adds a new item to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.inflight.Add(1)
	q.enqueue(&Message[T]{id: uuid.New().String(), payload: *t, queue: q})
	return nil
}

func (q *Queue[T]) enqueue(msg *Message[T]) {
	q.mu.Lock()
	q.backlog = append(q.backlog, msg)
	q.mu.Unlock()
	q.wake()
}

func (q *Queue[T]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) next() *Message[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.backlog) == 0 {
		return nil
	}
	msg := q.backlog[0]
	q.backlog[0] = nil
	q.backlog = q.backlog[1:]
	if len(q.backlog) > 0 {
		q.wake()
	}
	return msg
}

// Consume retrieves a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		if msg := q.next(); msg != nil {
			return msg, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Size returns the current number of queued messages
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Drain blocks until every published message was acked or dead lettered, or ctx is done
func (q *Queue[T]) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DLQSize returns the number of messages in the dead letter queue
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// DeadLetters returns payloads of dead lettered messages
func (q *Queue[T]) DeadLetters(ctx context.Context) ([]*T, error) {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	ret := make([]*T, 0, len(q.dlq))
	for _, m := range q.dlq {
		payload := m.payload
		ret = append(ret, &payload)
	}
	return ret, nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
var _ messaging.DeadLetters[any] = (*Queue[any])(nil)
