package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Tracker serializes arrivals per group and persists group state through a DAO.
type Tracker struct {
	dao DAO
	mu  sync.Mutex
	now func() time.Time
}

// NewTracker creates a tracker; a nil dao keeps groups in memory
func NewTracker(dao DAO) *Tracker {
	if dao == nil {
		dao = NewMemoryDAO()
	}
	return &Tracker{dao: dao, now: time.Now}
}

// Arrive registers a row arriving at a join node from source.
func (t *Tracker) Arrive(ctx context.Context, traceID, nodeID string, mode Mode, sources []string, source, contextID string) (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := GroupID(traceID, nodeID)
	group, err := t.dao.Load(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load join group %v: %w", id, err)
	}
	if group == nil {
		group = NewGroup(traceID, nodeID, mode, sources)
	}
	outcome := group.Arrive(source, contextID, t.now())
	if err = t.dao.Save(ctx, group); err != nil {
		return Outcome{}, fmt.Errorf("failed to save join group %v: %w", id, err)
	}
	return outcome, nil
}

// Group returns a group snapshot or nil
func (t *Tracker) Group(ctx context.Context, traceID, nodeID string) (*Group, error) {
	return t.dao.Load(ctx, GroupID(traceID, nodeID))
}

// Release removes every group of a trace
func (t *Tracker) Release(ctx context.Context, traceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	groups, err := t.dao.List(ctx)
	if err != nil {
		return err
	}
	for _, group := range groups {
		if group.TraceID != traceID {
			continue
		}
		if err = t.dao.Delete(ctx, group.ID); err != nil {
			return err
		}
	}
	return nil
}

// Forget removes the groups of a trace at the given join nodes
func (t *Tracker) Forget(ctx context.Context, traceID string, nodeIDs ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, nodeID := range nodeIDs {
		if err := t.dao.Delete(ctx, GroupID(traceID, nodeID)); err != nil {
			return fmt.Errorf("failed to delete join group %v: %w", GroupID(traceID, nodeID), err)
		}
	}
	return nil
}
