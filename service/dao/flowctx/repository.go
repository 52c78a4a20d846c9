// Package flowctx defines the context row repository.
package flowctx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/dao"
)

// ErrStatusMismatch is returned by CompareAndSave when the stored status differs from the expected one
var ErrStatusMismatch = errors.New("flowctx: status mismatch")

// Repository stores context rows. Every status change is an atomic compare-and-set per row.
type Repository interface {
	// GetByIDs returns rows in the requested order; unknown ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*flow.Context, error)

	// Save inserts or overwrites rows unconditionally.
	Save(ctx context.Context, rows ...*flow.Context) error

	// UpdateStatus validates and applies a status transition, returning the updated row.
	UpdateStatus(ctx context.Context, id string, status flow.Status) (*flow.Context, error)

	// CompareAndSave overwrites row only while the stored row still has the expected status.
	CompareAndSave(ctx context.Context, expected flow.Status, row *flow.Context) error

	List(ctx context.Context, query *Query) ([]*flow.Context, error)
}

// Query selects rows; zero fields do not constrain
type Query struct {
	StreamID      string
	TraceID       string
	Position      string
	BatchID       string
	TaskID        string
	Statuses      []flow.Status
	DueBefore     *time.Time
	UpdatedBefore *time.Time
	Limit         int
}

// Match reports whether row satisfies the query
func (q *Query) Match(row *flow.Context) bool {
	if q == nil {
		return true
	}
	switch {
	case q.StreamID != "" && row.StreamID != q.StreamID,
		q.TraceID != "" && row.TraceID != q.TraceID,
		q.Position != "" && row.Position != q.Position,
		q.BatchID != "" && row.BatchID != q.BatchID,
		q.TaskID != "" && row.TaskID != q.TaskID:
		return false
	}
	if len(q.Statuses) > 0 && !q.HasStatus(row.Status) {
		return false
	}
	if q.DueBefore != nil && (row.NextAttemptAt == nil || row.NextAttemptAt.After(*q.DueBefore)) {
		return false
	}
	if q.UpdatedBefore != nil && !row.UpdatedAt.Before(*q.UpdatedBefore) {
		return false
	}
	return true
}

// HasStatus reports whether status is one of the query statuses
func (q *Query) HasStatus(status flow.Status) bool {
	for _, candidate := range q.Statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

// Finalize orders rows by creation time and id and applies the limit
func (q *Query) Finalize(rows []*flow.Context) []*flow.Context {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
	if q != nil && q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows
}

// Validate checks that row can be stored
func Validate(row *flow.Context) error {
	if row == nil {
		return dao.ErrNilEntity
	}
	if row.ID == "" {
		return dao.ErrInvalidID
	}
	if !row.Status.Valid() {
		return fmt.Errorf("flowctx: unknown status %q of row %s", row.Status, row.ID)
	}
	return nil
}

// CheckCompare validates a compare-and-save against the stored status
func CheckCompare(stored, expected, next flow.Status, id string) error {
	if stored != expected {
		return fmt.Errorf("%w: row %s is %s, expected %s", ErrStatusMismatch, id, stored, expected)
	}
	if next != expected {
		if err := flow.Transit(expected, next); err != nil {
			return fmt.Errorf("row %s: %w", id, err)
		}
	}
	return nil
}

// NotFound returns a wrapped dao.ErrNotFound for a row id
func NotFound(id string) error {
	return fmt.Errorf("%w: context %s", dao.ErrNotFound, id)
}

// Touch stamps timestamps before a write
func Touch(row *flow.Context, now time.Time) {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
}
