package task

import (
	"context"
	"fmt"

	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/dao"
)

// Service defines the manual task lifecycle.
type Service interface {
	// Create registers a pending task; an empty id is generated.
	Create(ctx context.Context, t *Task) error

	Get(ctx context.Context, id string) (*Task, error)

	// ListPending returns pending tasks; parameters filter by streamId, nodeId, type, source or owner.
	ListPending(ctx context.Context, parameters ...*dao.Parameter) ([]*Task, error)

	// Resolve closes the task with per-row results keyed by context id and publishes its callback.
	Resolve(ctx context.Context, id string, results map[string]flow.Values) (*Task, error)

	// Fail closes the task with a reason and publishes an error callback.
	Fail(ctx context.Context, id string, reason string) (*Task, error)

	// Cancel closes pending tasks holding any of the rows without publishing; it returns the number of tasks closed.
	Cancel(ctx context.Context, contextIDs []string, reason string) (int, error)
}

// Publisher delivers callback events
type Publisher interface {
	Publish(ctx context.Context, event *flow.Callback) error
}

// ValidateResults checks a resolution against the task type
func ValidateResults(t *Task, results map[string]flow.Values) error {
	for contextID := range results {
		if !t.Has(contextID) {
			return fmt.Errorf("%w: task %s does not hold row %s", ErrInvalidResult, t.ID, contextID)
		}
	}
	if t.Type != definition.TaskApproval {
		return nil
	}
	for _, item := range t.Items {
		value, ok := results[item.ContextID][ApprovedKey]
		if !ok {
			return fmt.Errorf("%w: row %s requires boolean %v", ErrInvalidResult, item.ContextID, ApprovedKey)
		}
		if _, ok = value.(bool); !ok {
			return fmt.Errorf("%w: row %s %v must be boolean, got %T", ErrInvalidResult, item.ContextID, ApprovedKey, value)
		}
	}
	return nil
}
