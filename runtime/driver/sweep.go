package driver

import (
	"context"
	"errors"

	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/progress"
	"github.com/viant/fluxflow/service/dao/flowctx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrPendingTimeout is recorded on rows evicted after waiting too long on a filter
var ErrPendingTimeout = errors.New("pending timeout")

type batchKey struct {
	streamID string
	nodeID   string
	group    string
}

// groupBy partitions rows by stream, node and a row attribute, preserving first-seen order.
func groupBy(rows []*flow.Context, attribute func(row *flow.Context) string) ([]batchKey, map[batchKey][]*flow.Context) {
	var keys []batchKey
	groups := map[batchKey][]*flow.Context{}
	for _, row := range rows {
		key := batchKey{streamID: row.StreamID, nodeID: row.Position, group: attribute(row)}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], row)
	}
	return keys, groups
}

// Redrive re-dispatches RETRYABLE rows whose next attempt is due, keeping their original batches together.
func (d *Driver) Redrive(ctx context.Context) (int, error) {
	now := d.now()
	rows, err := d.contexts.List(ctx, &flowctx.Query{Statuses: []flow.Status{flow.StatusRetryable}, DueBefore: &now})
	if err != nil {
		return 0, err
	}
	keys, groups := groupBy(rows, func(row *flow.Context) string { return row.DispatchID })
	count := 0
	var errs error
	for _, key := range keys {
		def, node, err := d.resolve(ctx, key.streamID, key.nodeID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if node.Jober == nil {
			errs = multierr.Append(errs, stateError(key.streamID, key.nodeID, "retryable rows at node without jober"))
			continue
		}
		var ready []*flow.Context
		for _, row := range groups[key] {
			row.NextAttemptAt = nil
			if err = d.transit(ctx, row, flow.StatusReady); err != nil {
				if discarded(err) {
					continue
				}
				errs = multierr.Append(errs, err)
				continue
			}
			d.track(row, progress.Delta{Retrying: -1})
			if err = d.transit(ctx, row, flow.StatusProcessing); err != nil {
				if !discarded(err) {
					errs = multierr.Append(errs, err)
				}
				continue
			}
			ready = append(ready, row)
		}
		if len(ready) == 0 {
			continue
		}
		count += len(ready)
		logger.Info("redriving rows", zap.String("stream", key.streamID), zap.String("node", key.nodeID), zap.Int("rows", len(ready)))
		if err = d.handOff(ctx, def, node, ready); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return count, errs
}

// EvictPending fails PENDING rows the pending policy considers expired.
func (d *Driver) EvictPending(ctx context.Context) (int, error) {
	if d.pending == nil {
		return 0, nil
	}
	rows, err := d.contexts.List(ctx, &flowctx.Query{Statuses: []flow.Status{flow.StatusPending}})
	if err != nil {
		return 0, err
	}
	now := d.now()
	var expired []*flow.Context
	for _, row := range rows {
		if d.pending.Expired(row, now) {
			expired = append(expired, row)
		}
	}
	keys, groups := groupBy(expired, func(*flow.Context) string { return "" })
	count := 0
	var errs error
	for _, key := range keys {
		def, node, err := d.resolve(ctx, key.streamID, key.nodeID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		count += len(groups[key])
		if err = d.evict(ctx, def, node, groups[key]); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return count, errs
}

func (d *Driver) evict(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context) error {
	unlock := d.locks.lock(def.StreamID() + "/" + node.MetaID)
	defer unlock()
	var specific []string
	switch {
	case node.Manual() && node.Task != nil:
		specific = node.Task.ExceptionFitables
	case node.Jober != nil:
		specific = node.Jober.Exceptions
	}
	return d.escalate(ctx, def, node, rows, ErrPendingTimeout, exceptionTargets(def, node, specific))
}
