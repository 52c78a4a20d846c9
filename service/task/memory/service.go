// Package memory provides an in-process task service.
package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/fluxflow/internal/clock"
	"github.com/viant/fluxflow/internal/idgen"
	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/dao"
	"github.com/viant/fluxflow/service/dao/store"
	"github.com/viant/fluxflow/service/task"
	"go.uber.org/zap"
)

type service struct {
	tasks     *store.MemoryStore[string, task.Task]
	publisher task.Publisher
}

func taskKey(t *task.Task) string { return t.ID }

// New creates a memory task service
func New(options ...Option) task.Service {
	ret := &service{
		tasks: store.NewMemoryStore[string, task.Task](taskKey,
			store.WithClone[string, task.Task]((*task.Task).Clone),
			store.WithAttributes[string, task.Task]((*task.Task).Attributes),
			store.WithOrder[string, task.Task](func(a, b *task.Task) bool {
				if !a.CreatedAt.Equal(b.CreatedAt) {
					return a.CreatedAt.Before(b.CreatedAt)
				}
				return a.ID < b.ID
			}),
		),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *service) Create(ctx context.Context, t *task.Task) error {
	if t == nil {
		return dao.ErrNilEntity
	}
	if len(t.Items) == 0 {
		return fmt.Errorf("%w: task without rows", task.ErrInvalidResult)
	}
	if t.ID == "" {
		t.ID = idgen.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = clock.Now()
	}
	t.Status = task.StatusPending
	return s.tasks.Save(ctx, t)
}

func (s *service) Get(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.tasks.Load(ctx, id)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", task.ErrNotFound, id)
	}
	return t, err
}

func (s *service) ListPending(ctx context.Context, parameters ...*dao.Parameter) ([]*task.Task, error) {
	parameters = append(parameters, dao.NewParameter("status", string(task.StatusPending)))
	return s.tasks.List(ctx, parameters...)
}

func (s *service) Resolve(ctx context.Context, id string, results map[string]flow.Values) (*task.Task, error) {
	return s.close(ctx, id, func(t *task.Task) error {
		if err := task.ValidateResults(t, results); err != nil {
			return err
		}
		for _, item := range t.Items {
			item.Result = results[item.ContextID].Clone()
		}
		t.Status = task.StatusResolved
		return nil
	})
}

func (s *service) Fail(ctx context.Context, id string, reason string) (*task.Task, error) {
	if reason == "" {
		reason = "task failed"
	}
	return s.close(ctx, id, func(t *task.Task) error {
		t.Status = task.StatusFailed
		t.Reason = reason
		return nil
	})
}

func (s *service) Cancel(ctx context.Context, contextIDs []string, reason string) (int, error) {
	pending, err := s.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	canceled := 0
	for _, candidate := range pending {
		if !holdsAny(candidate, contextIDs) {
			continue
		}
		_, err = s.tasks.Update(ctx, candidate.ID, func(t *task.Task) error {
			if !t.Pending() {
				return task.ErrClosed
			}
			now := clock.Now()
			t.Status = task.StatusCanceled
			t.Reason = reason
			t.ClosedAt = &now
			return nil
		})
		if errors.Is(err, task.ErrClosed) {
			continue
		}
		if err != nil {
			return canceled, err
		}
		canceled++
	}
	return canceled, nil
}

func (s *service) close(ctx context.Context, id string, fn func(t *task.Task) error) (*task.Task, error) {
	closed, err := s.tasks.Update(ctx, id, func(t *task.Task) error {
		if !t.Pending() {
			return fmt.Errorf("%w: task %s is %s", task.ErrClosed, id, t.Status)
		}
		if err := fn(t); err != nil {
			return err
		}
		now := clock.Now()
		t.ClosedAt = &now
		return nil
	})
	if errors.Is(err, dao.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", task.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		if err = s.publisher.Publish(ctx, closed.Callback()); err != nil {
			s.reopen(ctx, id)
			return nil, fmt.Errorf("failed to publish callback of task %s: %w", id, err)
		}
	}
	logger.Info("task closed", zap.String("task", id), zap.String("status", string(closed.Status)), zap.String("node", closed.NodeID))
	return closed, nil
}

// reopen returns a task closed without a published callback to pending so it can be closed again.
func (s *service) reopen(ctx context.Context, id string) {
	_, err := s.tasks.Update(ctx, id, func(t *task.Task) error {
		t.Status = task.StatusPending
		t.Reason = ""
		t.ClosedAt = nil
		for _, item := range t.Items {
			item.Result = nil
		}
		return nil
	})
	if err != nil {
		logger.Warn("failed to reopen task", zap.String("task", id), zap.Error(err))
	}
}

func holdsAny(t *task.Task, contextIDs []string) bool {
	for _, id := range contextIDs {
		if t.Has(id) {
			return true
		}
	}
	return false
}

var _ task.Service = (*service)(nil)
