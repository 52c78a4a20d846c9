// Package memory provides an in-process context row repository.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/dao/flowctx"
)

// Repository keeps deep copies of rows in a map guarded by one lock
type Repository struct {
	rows map[string]*flow.Context
	mux  sync.RWMutex
	now  func() time.Time
}

var _ flowctx.Repository = (*Repository)(nil)

func (r *Repository) GetByIDs(_ context.Context, ids []string) ([]*flow.Context, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	result := make([]*flow.Context, 0, len(ids))
	for _, id := range ids {
		if row, ok := r.rows[id]; ok {
			result = append(result, row.Clone())
		}
	}
	return result, nil
}

func (r *Repository) Save(_ context.Context, rows ...*flow.Context) error {
	for _, row := range rows {
		if err := flowctx.Validate(row); err != nil {
			return err
		}
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	now := r.now()
	for _, row := range rows {
		flowctx.Touch(row, now)
		r.rows[row.ID] = row.Clone()
	}
	return nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, status flow.Status) (*flow.Context, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, flowctx.NotFound(id)
	}
	if err := flow.Transit(row.Status, status); err != nil {
		return nil, fmt.Errorf("row %s: %w", id, err)
	}
	row.Status = status
	row.UpdatedAt = r.now()
	return row.Clone(), nil
}

func (r *Repository) CompareAndSave(_ context.Context, expected flow.Status, row *flow.Context) error {
	if err := flowctx.Validate(row); err != nil {
		return err
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	stored, ok := r.rows[row.ID]
	if !ok {
		return flowctx.NotFound(row.ID)
	}
	if err := flowctx.CheckCompare(stored.Status, expected, row.Status, row.ID); err != nil {
		return err
	}
	flowctx.Touch(row, r.now())
	r.rows[row.ID] = row.Clone()
	return nil
}

func (r *Repository) List(_ context.Context, query *flowctx.Query) ([]*flow.Context, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	var result []*flow.Context
	for _, row := range r.rows {
		if query.Match(row) {
			result = append(result, row.Clone())
		}
	}
	return query.Finalize(result), nil
}

// New creates a memory repository
func New() *Repository {
	return &Repository{rows: map[string]*flow.Context{}, now: time.Now}
}
