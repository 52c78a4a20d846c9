package driver

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	defmemory "github.com/viant/fluxflow/service/dao/definition/memory"
	"github.com/viant/fluxflow/service/dao/flowctx"
	ctxmemory "github.com/viant/fluxflow/service/dao/flowctx/memory"
	"github.com/viant/fluxflow/service/invoker"
	"github.com/viant/fluxflow/service/jober"
	"github.com/viant/fluxflow/service/jober/echo"
	"github.com/viant/fluxflow/service/task"
	taskmemory "github.com/viant/fluxflow/service/task/memory"
)

const testStream = "orders-1.0"

// recordingRepository records every persisted status per row
type recordingRepository struct {
	flowctx.Repository
	mux     sync.Mutex
	history map[string][]flow.Status
}

func (r *recordingRepository) record(id string, status flow.Status) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.history[id] = append(r.history[id], status)
}

func (r *recordingRepository) Save(ctx context.Context, rows ...*flow.Context) error {
	if err := r.Repository.Save(ctx, rows...); err != nil {
		return err
	}
	for _, row := range rows {
		r.record(row.ID, row.Status)
	}
	return nil
}

func (r *recordingRepository) UpdateStatus(ctx context.Context, id string, status flow.Status) (*flow.Context, error) {
	row, err := r.Repository.UpdateStatus(ctx, id, status)
	if err == nil {
		r.record(id, status)
	}
	return row, err
}

func (r *recordingRepository) CompareAndSave(ctx context.Context, expected flow.Status, row *flow.Context) error {
	if err := r.Repository.CompareAndSave(ctx, expected, row); err != nil {
		return err
	}
	r.record(row.ID, row.Status)
	return nil
}

// assertMonotonic checks every recorded status change is a legal forward transition
func (r *recordingRepository) assertMonotonic(t *testing.T) {
	r.mux.Lock()
	defer r.mux.Unlock()
	for id, statuses := range r.history {
		for i := 1; i < len(statuses); i++ {
			if statuses[i] == statuses[i-1] {
				continue
			}
			require.Truef(t, flow.CanTransit(statuses[i-1], statuses[i]), "row %v moved %v -> %v", id, statuses[i-1], statuses[i])
		}
	}
}

// operator records batches and delegates to fn
type operator struct {
	mux     sync.Mutex
	batches [][]string
	fn      func(ctx context.Context, batch []*flow.Context, call int) error
}

func (o *operator) Operate(ctx context.Context, batch []*flow.Context, _ *definition.Jober) error {
	o.mux.Lock()
	o.batches = append(o.batches, flow.IDs(batch))
	call := len(o.batches)
	o.mux.Unlock()
	for _, row := range batch {
		row.Data.BusinessData.Set("handled", true)
	}
	if o.fn == nil {
		return nil
	}
	return o.fn(ctx, batch, call)
}

func (o *operator) calls() int {
	o.mux.Lock()
	defer o.mux.Unlock()
	return len(o.batches)
}

type callbackPublisher struct {
	driver *Driver
}

func (p *callbackPublisher) Publish(ctx context.Context, event *flow.Callback) error {
	return p.driver.HandleCallback(ctx, event)
}

type harness struct {
	driver   *Driver
	contexts *recordingRepository
	tasks    task.Service
	operator *operator
	handlers *handlerCalls
}

// handlerCalls counts exception and callback fitable invocations by target
type handlerCalls struct {
	mux    sync.Mutex
	counts map[string]int
	params map[string]map[string]interface{}
}

func (h *handlerCalls) service(name string, targets ...string) *invoker.Funcs {
	ret := invoker.NewFuncs(name)
	for _, target := range targets {
		key := name + "." + target
		ret.Put(target, func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
			h.mux.Lock()
			defer h.mux.Unlock()
			h.counts[key]++
			h.params[key] = params
			return map[string]interface{}{}, nil
		})
	}
	return ret
}

func (h *handlerCalls) count(key string) int {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.counts[key]
}

func newHarness(t *testing.T, def *definition.Definition, options ...Option) *harness {
	t.Helper()
	definitions := defmemory.New()
	require.NoError(t, definitions.Save(context.Background(), def))
	ret := &harness{
		contexts: &recordingRepository{Repository: ctxmemory.New(), history: map[string][]flow.Status{}},
		operator: &operator{},
		handlers: &handlerCalls{counts: map[string]int{}, params: map[string]map[string]interface{}{}},
	}
	publisher := &callbackPublisher{}
	ret.tasks = taskmemory.New(taskmemory.WithPublisher(publisher))
	dispatcher := jober.New(
		jober.WithOperator(definition.JoberEcho, echo.New()),
		jober.WithOperator(definition.JoberGenericable, ret.operator),
	)
	inv := invoker.New(
		ret.handlers.service("ops", "alert", "page"),
		ret.handlers.service("audit", "record"),
	)
	defaults := []Option{WithTasks(ret.tasks), WithDispatcher(dispatcher), WithInvoker(inv)}
	ret.driver = New(definitions, ret.contexts, append(defaults, options...)...)
	publisher.driver = ret.driver
	return ret
}

func (h *harness) trace(t *testing.T, traceID string) *Trace {
	t.Helper()
	ret, err := h.driver.Trace(context.Background(), traceID)
	require.NoError(t, err)
	return ret
}

func statuses(rows []*flow.Context) []flow.Status {
	var ret []flow.Status
	for _, row := range rows {
		ret = append(ret, row.Status)
	}
	return ret
}

func newDefinition(nodes []*definition.Node, events ...*definition.Event) *definition.Definition {
	return &definition.Definition{
		ID:      "orders",
		MetaID:  "orders",
		Version: "1.0",
		Status:  definition.StatusActive,
		Nodes:   nodes,
		Events:  events,
	}
}

func edge(from, to string, rule ...string) *definition.Event {
	ret := &definition.Event{MetaID: from + "_" + to, From: from, To: to}
	if len(rule) > 0 {
		ret.ConditionRule = rule[0]
	}
	return ret
}

func startNode() *definition.Node {
	return &definition.Node{MetaID: "start", Type: definition.NodeTypeStart, TriggerMode: definition.TriggerAuto}
}

func endNode() *definition.Node {
	return &definition.Node{MetaID: "end", Type: definition.NodeTypeEnd, TriggerMode: definition.TriggerAuto}
}

func stateNode(id string, jober *definition.Jober) *definition.Node {
	return &definition.Node{MetaID: id, Type: definition.NodeTypeState, TriggerMode: definition.TriggerAuto, Jober: jober}
}

func manualNode(id string, taskType definition.TaskType) *definition.Node {
	return &definition.Node{MetaID: id, Type: definition.NodeTypeState, TriggerMode: definition.TriggerManual, Task: &definition.Task{Type: taskType, Owner: "ops"}}
}
