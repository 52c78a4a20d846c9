// Package driver moves context rows through the node state machine of a flow definition.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/fluxflow/internal/clock"
	"github.com/viant/fluxflow/internal/idgen"
	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/progress"
	"github.com/viant/fluxflow/runtime/correlation"
	"github.com/viant/fluxflow/service/converter"
	"github.com/viant/fluxflow/service/dao"
	defrepo "github.com/viant/fluxflow/service/dao/definition"
	"github.com/viant/fluxflow/service/dao/flowctx"
	"github.com/viant/fluxflow/service/exception"
	"github.com/viant/fluxflow/service/filter"
	"github.com/viant/fluxflow/service/invoker"
	"github.com/viant/fluxflow/service/jober"
	"github.com/viant/fluxflow/service/task"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Publisher delivers task-created events to the automatic work pool
type Publisher interface {
	Publish(ctx context.Context, event *flow.TaskCreated) error
}

// Driver owns every row status change after creation.
type Driver struct {
	definitions   defrepo.Repository
	contexts      flowctx.Repository
	tasks         task.Service
	dispatcher    *jober.Dispatcher
	filters       *filter.Registry
	converters    *converter.Registry
	invoker       invoker.Invoker
	notifier      *exception.Notifier
	notifyTimeout time.Duration
	joins         *correlation.Tracker
	progress      *progress.Registry
	taskCreated   Publisher
	retry         RetryPolicy
	pending       PendingPolicy
	locks         keyLock
	now           func() time.Time
}

// Trace represents the rows and counters of one process instance
type Trace struct {
	TraceID  string             `json:"traceId"`
	Rows     []*flow.Context    `json:"rows"`
	Progress *progress.Progress `json:"progress,omitempty"`
}

// Done returns true when no row can move anymore
func (t *Trace) Done() bool {
	for _, row := range t.Rows {
		if !row.Status.Terminal() {
			return false
		}
	}
	return len(t.Rows) > 0
}

// Rows returns trace rows positioned at node
func (t *Trace) At(nodeID string) []*flow.Context {
	var result []*flow.Context
	for _, row := range t.Rows {
		if row.Position == nodeID {
			result = append(result, row)
		}
	}
	return result
}

// New creates a driver
func New(definitions defrepo.Repository, contexts flowctx.Repository, options ...Option) *Driver {
	ret := &Driver{
		definitions:   definitions,
		contexts:      contexts,
		retry:         DefaultRetryPolicy(),
		notifyTimeout: 10 * time.Second,
		now:           clock.Now,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.converters == nil {
		ret.converters = converter.NewRegistry()
	}
	if ret.filters == nil {
		ret.filters = filter.NewRegistry()
	}
	if ret.dispatcher == nil {
		ret.dispatcher = jober.New(jober.WithConverters(ret.converters))
	}
	if ret.invoker == nil {
		ret.invoker = invoker.New()
	}
	if ret.notifier == nil {
		ret.notifier = exception.New(ret.invoker, ret.notifyTimeout)
	}
	if ret.joins == nil {
		ret.joins = correlation.NewTracker(nil)
	}
	if ret.progress == nil {
		ret.progress = progress.NewRegistry(nil)
	}
	return ret
}

// Start creates the first row of a new instance at the START node and drives it as far as it goes inline.
func (d *Driver) Start(ctx context.Context, streamID string, businessData map[string]interface{}) (*flow.Context, error) {
	def, err := d.definitions.FindByStreamID(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if !def.Active() {
		return nil, fmt.Errorf("%w: %v", ErrInactive, streamID)
	}
	start := def.StartNode()
	if start == nil {
		return nil, stateError(streamID, "", "definition has no start node")
	}
	traceID := idgen.New()
	row := &flow.Context{
		ID:        idgen.New(),
		StreamID:  streamID,
		TraceID:   traceID,
		Position:  start.MetaID,
		BatchID:   idgen.New(),
		Status:    flow.StatusNew,
		Data:      flow.NewData(businessData),
		CreatedAt: d.now(),
	}
	row.Data.ContextData.Set("traceId", traceID)
	row.Data.ContextData.Set("streamId", streamID)
	if err = d.contexts.Save(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to save start context: %w", err)
	}
	d.track(row, progress.Delta{Created: 1})
	logger.Info("instance started", zap.String("stream", streamID), zap.String("trace", traceID))
	started := row.Clone()
	return started, d.run(ctx, def, step{node: start, rows: []*flow.Context{row}})
}

// Trace returns every row of an instance ordered by creation
func (d *Driver) Trace(ctx context.Context, traceID string) (*Trace, error) {
	rows, err := d.contexts.List(ctx, &flowctx.Query{TraceID: traceID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: trace %v", dao.ErrNotFound, traceID)
	}
	ret := &Trace{TraceID: traceID, Rows: rows}
	if snapshot, ok := d.progress.Get(traceID); ok {
		ret.Progress = &snapshot
	}
	return ret, nil
}

// Progress returns the counters registry
func (d *Driver) Progress() *progress.Registry {
	return d.progress
}

// Terminate moves every non-terminal row of an instance to TERMINATE, cancels its tasks
// and releases its join groups. In-flight results of terminated rows are discarded.
func (d *Driver) Terminate(ctx context.Context, traceID string) (int, error) {
	rows, err := d.contexts.List(ctx, &flowctx.Query{TraceID: traceID})
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, row := range rows {
		if row.Status.Terminal() {
			continue
		}
		previous := row.Status
		if _, err = d.contexts.UpdateStatus(ctx, row.ID, flow.StatusTerminate); err != nil {
			if errors.Is(err, flow.ErrInvalidTransition) {
				continue
			}
			return len(ids), err
		}
		ids = append(ids, row.ID)
		d.track(row, leave(previous).add(progress.Delta{Terminated: 1}))
	}
	if d.tasks != nil && len(ids) > 0 {
		if _, err = d.tasks.Cancel(ctx, ids, "terminated"); err != nil {
			return len(ids), fmt.Errorf("failed to cancel tasks of trace %v: %w", traceID, err)
		}
	}
	if err = d.joins.Release(ctx, traceID); err != nil {
		return len(ids), err
	}
	logger.Info("instance terminated", zap.String("trace", traceID), zap.Int("rows", len(ids)))
	return len(ids), nil
}

type step struct {
	node *definition.Node
	rows []*flow.Context
}

// run drains node entries iteratively; inline completions schedule their successors.
func (d *Driver) run(ctx context.Context, def *definition.Definition, steps ...step) error {
	var errs error
	var visited []*flow.Context
	queue := steps
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if len(current.rows) == 0 {
			continue
		}
		visited = append(visited, current.rows...)
		next, err := d.enter(ctx, def, current.node, current.rows)
		if err != nil {
			logger.Error("failed to enter node", zap.String("stream", def.StreamID()), zap.String("node", current.node.MetaID), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
		queue = append(queue, next...)
	}
	return multierr.Append(errs, d.settle(ctx, def, traceIDs(visited)))
}

// settle drops the join groups of traces with no row left to move.
func (d *Driver) settle(ctx context.Context, def *definition.Definition, traceIDs []string) error {
	var joinIDs []string
	for _, node := range def.Nodes {
		if node.Type == definition.NodeTypeJoin {
			joinIDs = append(joinIDs, node.MetaID)
		}
	}
	if len(joinIDs) == 0 {
		return nil
	}
	var errs error
	for _, traceID := range traceIDs {
		rows, err := d.contexts.List(ctx, &flowctx.Query{TraceID: traceID})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !(&Trace{Rows: rows}).Done() {
			continue
		}
		if err = d.joins.Forget(ctx, traceID, joinIDs...); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (d *Driver) track(row *flow.Context, delta progress.Delta) {
	d.progress.Update(row.TraceID, row.StreamID, delta)
}

type delta progress.Delta

func (a delta) add(b progress.Delta) progress.Delta {
	return progress.Delta{
		Created:    a.Created + b.Created,
		Archived:   a.Archived + b.Archived,
		Failed:     a.Failed + b.Failed,
		Terminated: a.Terminated + b.Terminated,
		Pending:    a.Pending + b.Pending,
		Retrying:   a.Retrying + b.Retrying,
	}
}

// leave returns the counter change of a row leaving status
func leave(status flow.Status) delta {
	switch status {
	case flow.StatusPending:
		return delta{Pending: -1}
	case flow.StatusRetryable:
		return delta{Retrying: -1}
	}
	return delta{}
}

// transit persists row in status next, guarded by its current status.
func (d *Driver) transit(ctx context.Context, row *flow.Context, next flow.Status) error {
	previous := row.Status
	row.Status = next
	if err := d.contexts.CompareAndSave(ctx, previous, row); err != nil {
		row.Status = previous
		return err
	}
	return nil
}

// discarded reports errors caused by a row changing concurrently, typically a termination.
func discarded(err error) bool {
	return errors.Is(err, flowctx.ErrStatusMismatch) || errors.Is(err, flow.ErrInvalidTransition)
}

func exceptionTargets(def *definition.Definition, node *definition.Node, specific []string) []string {
	if len(specific) > 0 {
		return specific
	}
	return def.ExceptionTargets(node)
}
