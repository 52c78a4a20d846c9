package driver

import (
	"context"
	"fmt"

	"github.com/viant/fluxflow/internal/idgen"
	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/progress"
	"github.com/viant/fluxflow/runtime/correlation"
	"github.com/viant/fluxflow/runtime/rule"
	"github.com/viant/fluxflow/service/dao/flowctx"
	"github.com/viant/fluxflow/service/jober"
	"github.com/viant/fluxflow/service/task"
	"go.uber.org/zap"
)

// enter handles NEW rows arriving at node and returns successors completed inline.
func (d *Driver) enter(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context) ([]step, error) {
	if node.Type == definition.NodeTypeJoin {
		released, err := d.join(ctx, def, node, rows)
		if err != nil || len(released) == 0 {
			return nil, err
		}
		rows = released
	}
	return d.admit(ctx, def, node, rows)
}

// join registers arrivals at a JOIN node and returns the rows the join releases.
func (d *Driver) join(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context) ([]*flow.Context, error) {
	var sources []string
	seen := map[string]bool{}
	for _, edge := range def.Incoming(node.MetaID) {
		if !seen[edge.From] {
			seen[edge.From] = true
			sources = append(sources, edge.From)
		}
	}
	mode := correlation.Mode(node.JoinMode())
	var released []*flow.Context
	for _, row := range rows {
		outcome, err := d.joins.Arrive(ctx, row.TraceID, node.MetaID, mode, sources, row.From, row.ID)
		if err != nil {
			return released, err
		}
		switch {
		case outcome.Discard:
			if err = d.transit(ctx, row, flow.StatusArchived); err != nil {
				if discarded(err) {
					continue
				}
				return released, err
			}
			d.track(row, progress.Delta{Archived: 1})
			logger.Debug("join discarded late arrival", zap.String("node", node.MetaID), zap.String("context", row.ID))
		case outcome.Ready():
			if len(outcome.Members) == 1 && outcome.Members[0] == row.ID {
				released = append(released, row)
				continue
			}
			merged, err := d.merge(ctx, node, outcome.Members)
			if err != nil {
				return released, err
			}
			if merged != nil {
				released = append(released, merged)
			}
		}
	}
	return released, nil
}

// merge archives join members and creates one row carrying their combined data in member order.
func (d *Driver) merge(ctx context.Context, node *definition.Node, memberIDs []string) (*flow.Context, error) {
	members, err := d.contexts.GetByIDs(ctx, memberIDs)
	if err != nil {
		return nil, err
	}
	var archived []*flow.Context
	for _, member := range members {
		if err = d.transit(ctx, member, flow.StatusArchived); err != nil {
			if discarded(err) {
				continue
			}
			return nil, err
		}
		archived = append(archived, member)
	}
	if len(archived) == 0 {
		return nil, nil
	}
	first := archived[0]
	merged := &flow.Context{
		ID:        idgen.New(),
		StreamID:  first.StreamID,
		TraceID:   first.TraceID,
		Position:  node.MetaID,
		From:      archived[len(archived)-1].From,
		BatchID:   idgen.New(),
		Status:    flow.StatusNew,
		Data:      flow.Data{BusinessData: flow.Values{}, ContextData: first.Data.ContextData.Clone(), PassData: flow.Values{}},
		CreatedAt: d.now(),
	}
	for _, member := range archived {
		merged.Data.BusinessData.Merge(member.Data.BusinessData.Clone())
		merged.Data.PassData.Merge(member.Data.PassData.Clone())
	}
	if err = d.contexts.Save(ctx, merged); err != nil {
		return nil, err
	}
	d.track(merged, progress.Delta{Created: 1, Archived: len(archived)})
	return merged, nil
}

// admit applies the node filter and processes every admitted group.
func (d *Driver) admit(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context) ([]step, error) {
	spec := node.ActiveFilter()
	if spec == nil {
		return d.process(ctx, def, node, rows)
	}
	flt, err := d.filters.Lookup(spec)
	if err != nil {
		return nil, err
	}
	unlock := d.locks.lock(def.StreamID() + "/" + node.MetaID)
	defer unlock()
	for _, row := range rows {
		if row.Status != flow.StatusNew {
			continue
		}
		if err = d.transit(ctx, row, flow.StatusPending); err != nil {
			if discarded(err) {
				continue
			}
			return nil, err
		}
		d.track(row, progress.Delta{Pending: 1})
	}
	pending, err := d.contexts.List(ctx, &flowctx.Query{StreamID: def.StreamID(), Position: node.MetaID, Statuses: []flow.Status{flow.StatusPending}})
	if err != nil {
		return nil, err
	}
	result := flt.Evaluate(pending, node)
	if !result.Proceed {
		logger.Debug("rows held by filter", zap.String("node", node.MetaID), zap.String("filter", string(spec.Type)), zap.Int("pending", len(pending)))
		return nil, nil
	}
	var steps []step
	for _, group := range result.Groups {
		next, err := d.process(ctx, def, node, group)
		if err != nil {
			return steps, err
		}
		steps = append(steps, next...)
	}
	return steps, nil
}

// process moves an admitted group to PROCESSING under one dispatch id and hands it to its task or jober.
func (d *Driver) process(ctx context.Context, def *definition.Definition, node *definition.Node, group []*flow.Context) ([]step, error) {
	dispatchID := idgen.New()
	taskID := ""
	if node.Manual() {
		taskID = idgen.New()
	}
	var admitted []*flow.Context
	for _, row := range group {
		previous := row.Status
		if previous != flow.StatusReady {
			if err := d.transit(ctx, row, flow.StatusReady); err != nil {
				if discarded(err) {
					continue
				}
				return nil, err
			}
			d.track(row, leave(previous).add(progress.Delta{}))
		}
		row.DispatchID = dispatchID
		row.TaskID = taskID
		if err := d.transit(ctx, row, flow.StatusProcessing); err != nil {
			if discarded(err) {
				continue
			}
			return nil, err
		}
		admitted = append(admitted, row)
	}
	if len(admitted) == 0 {
		return nil, nil
	}
	switch {
	case node.Manual():
		return nil, d.createTask(ctx, def, node, taskID, admitted)
	case node.Jober != nil:
		return nil, d.handOff(ctx, def, node, admitted)
	}
	return d.complete(ctx, def, node, admitted)
}

func (d *Driver) createTask(ctx context.Context, def *definition.Definition, node *definition.Node, taskID string, rows []*flow.Context) error {
	spec := node.Task
	if spec == nil {
		spec = &definition.Task{Type: definition.TaskManual}
	}
	t := &task.Task{
		ID:                taskID,
		StreamID:          def.StreamID(),
		NodeID:            node.MetaID,
		Type:              spec.Type,
		Source:            spec.Source,
		Owner:             spec.Owner,
		ExceptionFitables: exceptionTargets(def, node, spec.ExceptionFitables),
	}
	for _, row := range rows {
		data := row.Data.BusinessData.Clone()
		if spec.Converter != nil {
			var err error
			if data, err = d.converters.Apply(spec.Converter, data); err != nil {
				return d.escalate(ctx, def, node, rows, fmt.Errorf("convert context %v: %w", row.ID, err), t.ExceptionFitables)
			}
		}
		t.Items = append(t.Items, &task.LineItem{ContextID: row.ID, TraceID: row.TraceID, Data: data})
	}
	if d.tasks == nil {
		return d.escalate(ctx, def, node, rows, fmt.Errorf("node %v: no task service configured", node.MetaID), t.ExceptionFitables)
	}
	if err := d.tasks.Create(ctx, t); err != nil {
		return d.escalate(ctx, def, node, rows, fmt.Errorf("failed to create task at %v: %w", node.MetaID, err), t.ExceptionFitables)
	}
	logger.Info("task created", zap.String("task", taskID), zap.String("node", node.MetaID), zap.Int("rows", len(rows)))
	return nil
}

// publish hands a batch to the automatic work pool, or runs it inline without one.
func (d *Driver) publish(ctx context.Context, event *flow.TaskCreated) error {
	if d.taskCreated == nil {
		return d.HandleTaskCreated(ctx, event)
	}
	return d.taskCreated.Publish(ctx, event)
}

// handOff publishes PROCESSING rows to the automatic work pool; a failed publish schedules a redrive.
func (d *Driver) handOff(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context) error {
	err := d.publish(ctx, &flow.TaskCreated{StreamID: def.StreamID(), NodeID: node.MetaID, ContextIDs: flow.IDs(rows)})
	if err == nil || d.taskCreated == nil {
		return err
	}
	logger.Warn("failed to publish task created", zap.String("node", node.MetaID), zap.Int("rows", len(rows)), zap.Error(err))
	return d.retryOrFail(ctx, def, node, rows, &jober.DispatchError{NodeID: node.MetaID, JoberType: node.Jober.Type, Retryable: true, Err: err})
}

// complete archives PROCESSING rows and returns their successors.
func (d *Driver) complete(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context) ([]step, error) {
	var archived []*flow.Context
	for _, row := range rows {
		row.Error = ""
		if err := d.transit(ctx, row, flow.StatusArchived); err != nil {
			if discarded(err) {
				logger.Info("discarded result of changed row", zap.String("node", node.MetaID), zap.String("context", row.ID))
				continue
			}
			return nil, err
		}
		d.track(row, progress.Delta{Archived: 1})
		archived = append(archived, row)
	}
	return d.advance(ctx, def, node, archived)
}

// advance creates successor rows along every outgoing edge whose rule holds.
// CONDITION nodes follow only the first matching edge. Successors of one source batch share a batch per target.
func (d *Driver) advance(ctx context.Context, def *definition.Definition, node *definition.Node, rows []*flow.Context) ([]step, error) {
	edges := def.Outgoing(node.MetaID)
	if len(edges) == 0 || len(rows) == 0 {
		return nil, nil
	}
	byTarget := map[string][]*flow.Context{}
	var targets []string
	batches := map[string]string{}
	var successors []*flow.Context
	now := d.now()
	for _, row := range rows {
		for _, edge := range edges {
			ok, err := rule.Evaluate(edge.ConditionRule, &row.Data)
			if err != nil {
				logger.Warn("failed to evaluate edge rule", zap.String("edge", edge.MetaID), zap.String("context", row.ID), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
			key := row.BatchID + "/" + edge.To
			batchID, ok := batches[key]
			if !ok {
				batchID = idgen.New()
				batches[key] = batchID
			}
			successor := &flow.Context{
				ID:        idgen.New(),
				StreamID:  row.StreamID,
				TraceID:   row.TraceID,
				Position:  edge.To,
				From:      node.MetaID,
				BatchID:   batchID,
				Status:    flow.StatusNew,
				Data:      row.Data.Clone(),
				CreatedAt: now,
			}
			if _, ok := byTarget[edge.To]; !ok {
				targets = append(targets, edge.To)
			}
			byTarget[edge.To] = append(byTarget[edge.To], successor)
			successors = append(successors, successor)
			if node.Exclusive() {
				break
			}
		}
	}
	if len(successors) == 0 {
		return nil, nil
	}
	if err := d.contexts.Save(ctx, successors...); err != nil {
		return nil, fmt.Errorf("failed to save successors of %v: %w", node.MetaID, err)
	}
	for _, successor := range successors {
		d.track(successor, progress.Delta{Created: 1})
	}
	steps := make([]step, 0, len(targets))
	for _, target := range targets {
		next := def.Node(target)
		if next == nil {
			return steps, stateError(def.StreamID(), target, "edge targets unknown node")
		}
		steps = append(steps, step{node: next, rows: byTarget[target]})
	}
	return steps, nil
}
