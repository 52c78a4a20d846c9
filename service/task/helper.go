package task

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/fluxflow/model/flow"
)

// DecisionFunc decides a pending task: results resolve it, a non-empty reason fails it.
type DecisionFunc func(t *Task) (results map[string]flow.Values, reason string)

// AutoResolve starts a goroutine that polls ListPending and applies fn to every task.
// It returns stop(); call it or cancel ctx to exit.
func AutoResolve(ctx context.Context, svc Service, fn DecisionFunc, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				tasks, _ := svc.ListPending(ctx)
				for _, t := range tasks {
					results, reason := fn(t)
					if reason != "" {
						_, _ = svc.Fail(ctx, t.ID, reason)
						continue
					}
					_, _ = svc.Resolve(ctx, t.ID, results)
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove resolves every pending task marking each row approved
func AutoApprove(ctx context.Context, svc Service, interval time.Duration) func() {
	return AutoResolve(ctx, svc, func(t *Task) (map[string]flow.Values, string) {
		results := make(map[string]flow.Values, len(t.Items))
		for _, item := range t.Items {
			results[item.ContextID] = flow.Values{ApprovedKey: true}
		}
		return results, ""
	}, interval)
}

// WaitForStatus polls until the task leaves pending or timeout elapses.
func WaitForStatus(ctx context.Context, svc Service, id string, timeout time.Duration) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		t, err := svc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !t.Pending() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("task %s still pending: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}
