// Package exception fans failed batches out to exception handlers.
package exception

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/invoker"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultService is the service id used for targets without a service prefix
const DefaultService = "notify"

// Notification represents a failed batch passed to every handler
type Notification struct {
	StreamID string                   `json:"streamId"`
	NodeID   string                   `json:"nodeId"`
	Error    string                   `json:"error"`
	Contexts []map[string]interface{} `json:"contexts"`
}

// NewNotification builds a notification from a failed batch
func NewNotification(streamID, nodeID string, err error, batch []*flow.Context) *Notification {
	ret := &Notification{StreamID: streamID, NodeID: nodeID, Contexts: flow.Views(batch)}
	if err != nil {
		ret.Error = err.Error()
	}
	return ret
}

// Values returns the notification as invocation params
func (n *Notification) Values() map[string]interface{} {
	contexts := make([]interface{}, 0, len(n.Contexts))
	for _, c := range n.Contexts {
		contexts = append(contexts, c)
	}
	return map[string]interface{}{
		"streamId": n.StreamID,
		"nodeId":   n.NodeID,
		"error":    n.Error,
		"contexts": contexts,
	}
}

// Notifier invokes every target concurrently and waits for all of them or the timeout
type Notifier struct {
	invoker invoker.Invoker
	timeout time.Duration
}

// Notify returns once every target was called or the timeout elapsed; handler errors are aggregated
// and do not stop other handlers. Handlers still running at the timeout are abandoned.
func (n *Notifier) Notify(ctx context.Context, targets []string, notification *Notification) error {
	if len(targets) == 0 {
		return nil
	}
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	var mux sync.Mutex
	var errs error
	group, groupCtx := errgroup.WithContext(ctx)
	params := notification.Values()
	for _, target := range targets {
		group.Go(func() error {
			serviceID, targetID := invoker.Split(target, DefaultService)
			_, err := n.invoker.Invoke(groupCtx, serviceID, targetID, params)
			if err != nil {
				logger.Warn("exception handler failed",
					zap.String("target", target),
					zap.String("node", notification.NodeID),
					zap.Error(err))
				mux.Lock()
				errs = multierr.Append(errs, fmt.Errorf("exception handler %v: %w", target, err))
				mux.Unlock()
			}
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("exception handlers timed out", zap.String("node", notification.NodeID), zap.Strings("targets", targets))
	}
	mux.Lock()
	defer mux.Unlock()
	if ctxErr := ctx.Err(); ctxErr != nil {
		errs = multierr.Append(errs, ctxErr)
	}
	return errs
}

// New creates a notifier; timeout bounds the whole fan-out
func New(inv invoker.Invoker, timeout time.Duration) *Notifier {
	return &Notifier{invoker: inv, timeout: timeout}
}
