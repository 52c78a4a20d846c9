package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/progress"
	"github.com/viant/fluxflow/service/dao"
	"github.com/viant/fluxflow/service/exception"
	"github.com/viant/fluxflow/service/invoker"
	"github.com/viant/fluxflow/service/jober"
	"github.com/viant/fluxflow/tracing"
	"go.uber.org/zap"
)

// CallbackService is the invoker service used by fitable callbacks without an explicit service
const CallbackService = "callback"

// HandleTaskCreated dispatches the jober of a node once for the whole batch and moves the rows on.
func (d *Driver) HandleTaskCreated(ctx context.Context, event *flow.TaskCreated) (err error) {
	ctx, span := tracing.StartSpan(ctx, "driver.taskCreated", "CONSUMER")
	defer func() { tracing.EndSpan(span, err) }()
	def, node, err := d.resolve(ctx, event.StreamID, event.NodeID)
	if err != nil {
		return err
	}
	if node.Jober == nil {
		return stateError(event.StreamID, event.NodeID, "node has no jober")
	}
	rows, err := d.load(ctx, event.StreamID, event.NodeID, event.ContextIDs)
	if err != nil {
		return err
	}
	processing := inStatus(rows, flow.StatusProcessing)
	if len(processing) == 0 {
		logger.Debug("no processing rows to dispatch", zap.String("node", event.NodeID), zap.Int("rows", len(rows)))
		return nil
	}
	result := d.dispatcher.Dispatch(ctx, node, processing)
	if !result.OK() {
		return d.retryOrFail(ctx, def, node, processing, result.Err)
	}
	next, err := d.complete(ctx, def, node, result.Contexts)
	if err != nil {
		return err
	}
	return d.run(ctx, def, next...)
}

// HandleCallback resumes rows of a resolved or failed manual task.
func (d *Driver) HandleCallback(ctx context.Context, event *flow.Callback) (err error) {
	ctx, span := tracing.StartSpan(ctx, "driver.callback", "CONSUMER")
	defer func() { tracing.EndSpan(span, err) }()
	if len(event.Items) == 0 {
		return stateError(event.StreamID, event.Position, "callback has no items")
	}
	for _, item := range event.Items {
		if (item.StreamID != "" && item.StreamID != event.StreamID) || (item.Position != "" && item.Position != event.Position) {
			return stateError(event.StreamID, event.Position, "callback item %v does not share stream and position", item.ContextID)
		}
	}
	def, node, err := d.resolve(ctx, event.StreamID, event.Position)
	if err != nil {
		return err
	}
	rows, err := d.load(ctx, event.StreamID, event.Position, event.ContextIDs())
	if err != nil {
		return err
	}
	for _, row := range rows {
		if event.TaskID != "" && row.TaskID != "" && row.TaskID != event.TaskID {
			return stateError(event.StreamID, event.Position, "context %v is held by task %v", row.ID, row.TaskID)
		}
	}
	processing := inStatus(rows, flow.StatusProcessing)
	if len(processing) == 0 {
		logger.Debug("no processing rows to resume", zap.String("node", event.Position), zap.String("task", event.TaskID))
		return nil
	}
	var targets []string
	if node.Task != nil {
		targets = node.Task.ExceptionFitables
	}
	targets = exceptionTargets(def, node, targets)
	if event.Error != "" {
		return d.escalate(ctx, def, node, processing, errors.New(event.Error), targets)
	}
	byID := map[string]flow.Values{}
	for _, item := range event.Items {
		byID[item.ContextID] = item.Data
	}
	for _, row := range processing {
		if row.Data.BusinessData == nil {
			row.Data.BusinessData = flow.Values{}
		}
		row.Data.BusinessData.Merge(byID[row.ID].Clone())
	}
	if err = d.callback(ctx, def, node, processing); err != nil {
		return d.escalate(ctx, def, node, processing, err, targets)
	}
	if node.Jober != nil {
		var kept []*flow.Context
		for _, row := range processing {
			if err = d.transit(ctx, row, flow.StatusProcessing); err != nil {
				if discarded(err) {
					continue
				}
				return err
			}
			kept = append(kept, row)
		}
		if len(kept) == 0 {
			return nil
		}
		return d.handOff(ctx, def, node, kept)
	}
	next, err := d.complete(ctx, def, node, processing)
	if err != nil {
		return err
	}
	return d.run(ctx, def, next...)
}

// callback runs the node callback; fitable callbacks invoke every fitable once with the batch.
func (d *Driver) callback(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context) error {
	spec := node.Callback
	if spec == nil || spec.Type != definition.CallbackFitable {
		return nil
	}
	params := map[string]interface{}{
		"streamId": def.StreamID(),
		"nodeId":   node.MetaID,
		"contexts": flow.Views(rows),
	}
	for _, fitable := range spec.Fitables {
		serviceID, targetID := invoker.Split(fitable, CallbackService)
		if _, err := d.invoker.Invoke(ctx, serviceID, targetID, params); err != nil {
			return fmt.Errorf("callback %v failed: %w", fitable, err)
		}
	}
	return nil
}

// retryOrFail marks rows RETRYABLE while the retry budget lasts; the rest is escalated to ERROR.
func (d *Driver) retryOrFail(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context, cause *jober.DispatchError) error {
	policy := d.retry.Override(node.Jober.Retry)
	var failed []*flow.Context
	now := d.now()
	for _, row := range rows {
		if !cause.Retryable || row.RetryCount >= policy.MaxRetries {
			failed = append(failed, row)
			continue
		}
		row.RetryCount++
		at := now.Add(policy.Delay(row.RetryCount))
		row.NextAttemptAt = &at
		row.Error = cause.Error()
		if err := d.transit(ctx, row, flow.StatusRetryable); err != nil {
			if discarded(err) {
				continue
			}
			return err
		}
		d.track(row, progress.Delta{Retrying: 1})
		logger.Warn("jober failed, scheduled retry", zap.String("node", node.MetaID), zap.String("context", row.ID), zap.Int("attempt", row.RetryCount), zap.Time("at", at), zap.Error(cause))
	}
	if len(failed) == 0 {
		return nil
	}
	return d.escalate(ctx, def, node, failed, cause, exceptionTargets(def, node, node.Jober.Exceptions))
}

// escalate notifies every exception target once with the batch, then moves the rows to ERROR.
func (d *Driver) escalate(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context, cause error, targets []string) error {
	notification := exception.NewNotification(def.StreamID(), node.MetaID, cause, rows)
	if err := d.notifier.Notify(ctx, targets, notification); err != nil {
		logger.Warn("exception routing failed", zap.String("node", node.MetaID), zap.Strings("targets", targets), zap.Error(err))
	}
	for _, row := range rows {
		previous := row.Status
		row.Error = cause.Error()
		if err := d.transit(ctx, row, flow.StatusError); err != nil {
			if discarded(err) {
				continue
			}
			return err
		}
		d.track(row, leave(previous).add(progress.Delta{Failed: 1}))
	}
	logger.Error("rows failed", zap.String("stream", def.StreamID()), zap.String("node", node.MetaID), zap.Int("rows", len(rows)), zap.Error(cause))
	return d.settle(ctx, def, traceIDs(rows))
}

func traceIDs(rows []*flow.Context) []string {
	var ret []string
	seen := map[string]bool{}
	for _, row := range rows {
		if !seen[row.TraceID] {
			seen[row.TraceID] = true
			ret = append(ret, row.TraceID)
		}
	}
	return ret
}

// resolve returns the definition and node an event targets
func (d *Driver) resolve(ctx context.Context, streamID, nodeID string) (*definition.Definition, *definition.Node, error) {
	def, err := d.definitions.FindByStreamID(ctx, streamID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, nil, stateError(streamID, nodeID, "unknown stream")
		}
		return nil, nil, err
	}
	node := def.Node(nodeID)
	if node == nil {
		return nil, nil, stateError(streamID, nodeID, "unknown node")
	}
	return def, node, nil
}

// load returns event rows, all of which must exist at the stream and node
func (d *Driver) load(ctx context.Context, streamID, nodeID string, ids []string) ([]*flow.Context, error) {
	if len(ids) == 0 {
		return nil, stateError(streamID, nodeID, "event has no contexts")
	}
	rows, err := d.contexts.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) != len(ids) {
		return nil, stateError(streamID, nodeID, "%v of %v contexts not found", len(ids)-len(rows), len(ids))
	}
	for _, row := range rows {
		if row.StreamID != streamID || row.Position != nodeID {
			return nil, stateError(streamID, nodeID, "context %v is at %v/%v", row.ID, row.StreamID, row.Position)
		}
	}
	return rows, nil
}

func inStatus(rows []*flow.Context, status flow.Status) []*flow.Context {
	var result []*flow.Context
	for _, row := range rows {
		if row.Status == status {
			result = append(result, row)
		}
	}
	return result
}
