// Package fs provides a durable queue storing one JSON file per message on an afs storage.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/fluxflow/service/messaging"
)

// ErrAlreadyProcessed is returned when a message is acked or nacked twice
var ErrAlreadyProcessed = errors.New("message already processed")

const fileExt = ".json"

// Message represents a persisted delivery
type Message[T any] struct {
	MessageID string    `json:"id"`
	Data      T         `json:"data"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	NotBefore time.Time `json:"notBefore"`
	Retries   int       `json:"retries"`

	queue     *Queue[T]
	filename  string
	processed bool
	mu        sync.Mutex
}

func (m *Message[T]) ID() string {
	return m.MessageID
}

func (m *Message[T]) Attempt() int {
	return m.Retries
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack removes the message from the processing directory
func (m *Message[T]) Ack() error {
	if !m.markProcessed() {
		return ErrAlreadyProcessed
	}
	return m.queue.remove(context.Background(), path.Join(m.queue.processingDir, m.filename))
}

// Nack moves the message back to pending after RetryDelay, or to the dead letter directory
func (m *Message[T]) Nack(err error) error {
	if !m.markProcessed() {
		return ErrAlreadyProcessed
	}
	if err != nil {
		m.Error = err.Error()
	}
	return m.queue.fail(context.Background(), m)
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

// QueueConfig holds configuration for filesystem queue
type QueueConfig struct {
	BasePath     string
	MaxRetries   int
	RetryDelay   time.Duration
	PollInterval time.Duration
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() QueueConfig {
	return QueueConfig{
		BasePath:     "/tmp/fluxflow/queue",
		MaxRetries:   3,
		RetryDelay:   time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// Queue implements a filesystem-based messaging.Queue
type Queue[T any] struct {
	fs            afs.Service
	config        QueueConfig
	pendingDir    string
	processingDir string
	dlqDir        string
	mu            sync.Mutex
}

// NewQueue creates a new filesystem-based queue
func NewQueue[T any](fs afs.Service, config QueueConfig) (*Queue[T], error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingDir:    path.Join(config.BasePath, "pending"),
		processingDir: path.Join(config.BasePath, "processing"),
		dlqDir:        path.Join(config.BasePath, "dlq"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingDir, q.processingDir, q.dlqDir} {
		if exists, _ := fs.Exists(ctx, dir); exists {
			continue
		}
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return q, nil
}

// Publish writes a new message to the pending directory
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := time.Now()
	message := &Message[T]{
		MessageID: uuid.New().String(),
		Data:      *t,
		CreatedAt: now,
		NotBefore: now,
	}
	return q.write(ctx, q.pendingDir, message)
}

// Consume polls the pending directory until a due message is claimed or ctx is done
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()
	for {
		message, err := q.claim(ctx)
		if err != nil || message != nil {
			return message, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// claim moves the oldest due pending message to processing
func (q *Queue[T]) claim(ctx context.Context) (*Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	objects, err := q.messages(ctx, q.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	now := time.Now()
	for _, obj := range objects {
		if dueAt(obj.Name()).After(now) {
			continue
		}
		message, err := q.read(ctx, obj.URL())
		if err != nil {
			_ = q.fs.Move(ctx, obj.URL(), path.Join(q.dlqDir, "invalid-"+obj.Name()))
			return nil, err
		}
		message.queue = q
		message.filename = message.MessageID + fileExt
		if err = q.fs.Move(ctx, obj.URL(), path.Join(q.processingDir, message.filename)); err != nil {
			return nil, fmt.Errorf("failed to move message %v to processing: %w", message.MessageID, err)
		}
		return message, nil
	}
	return nil, nil
}

func (q *Queue[T]) fail(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	processing := path.Join(q.processingDir, m.filename)
	if m.Retries >= q.config.MaxRetries {
		if err := q.write(ctx, q.dlqDir, m); err != nil {
			return fmt.Errorf("failed to write message to DLQ: %w", err)
		}
		return q.remove(ctx, processing)
	}
	m.Retries++
	m.NotBefore = time.Now().Add(q.config.RetryDelay)
	if err := q.write(ctx, q.pendingDir, m); err != nil {
		return fmt.Errorf("failed to requeue message: %w", err)
	}
	return q.remove(ctx, processing)
}

// DeadLetters returns payloads of dead lettered messages
func (q *Queue[T]) DeadLetters(ctx context.Context) ([]*T, error) {
	objects, err := q.messages(ctx, q.dlqDir)
	if err != nil {
		return nil, err
	}
	var ret []*T
	for _, obj := range objects {
		message, err := q.read(ctx, obj.URL())
		if err != nil {
			continue
		}
		ret = append(ret, &message.Data)
	}
	return ret, nil
}

// Pending returns the number of pending messages
func (q *Queue[T]) Pending(ctx context.Context) (int, error) {
	objects, err := q.messages(ctx, q.pendingDir)
	return len(objects), err
}

func (q *Queue[T]) messages(ctx context.Context, dir string) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	var ret []storage.Object
	for _, obj := range objects {
		if !obj.IsDir() && strings.HasSuffix(obj.Name(), fileExt) {
			ret = append(ret, obj)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name() < ret[j].Name() })
	return ret, nil
}

// write stores m under <notBefore unix nanos>-<id>.json so names sort by due time
func (q *Queue[T]) write(ctx context.Context, dir string, m *Message[T]) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	name := fmt.Sprintf("%020d-%s%s", m.NotBefore.UnixNano(), m.MessageID, fileExt)
	return q.fs.Upload(ctx, path.Join(dir, name), file.DefaultFileOsMode, bytes.NewReader(data))
}

func (q *Queue[T]) remove(ctx context.Context, URL string) error {
	if exists, _ := q.fs.Exists(ctx, URL); !exists {
		return nil
	}
	return q.fs.Delete(ctx, URL)
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", URL, err)
	}
	var message Message[T]
	if err = json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", URL, err)
	}
	return &message, nil
}

func dueAt(name string) time.Time {
	idx := strings.Index(name, "-")
	if idx <= 0 {
		return time.Time{}
	}
	nanos, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
var _ messaging.DeadLetters[any] = (*Queue[any])(nil)
