package jober

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/converter"
	"go.uber.org/zap"
)

// Dispatcher resolves operators by jober type and runs them through the middleware chain
type Dispatcher struct {
	operators   map[definition.JoberType]Operator
	converters  *converter.Registry
	middlewares []Middleware
	mux         sync.RWMutex
}

// Option customises a Dispatcher
type Option func(d *Dispatcher)

// WithOperator registers an operator
func WithOperator(joberType definition.JoberType, operator Operator) Option {
	return func(d *Dispatcher) {
		d.operators[joberType] = operator
	}
}

// WithMiddleware appends middleware; the first one is outermost
func WithMiddleware(middlewares ...Middleware) Option {
	return func(d *Dispatcher) {
		d.middlewares = append(d.middlewares, middlewares...)
	}
}

// WithConverters sets the converter registry
func WithConverters(registry *converter.Registry) Option {
	return func(d *Dispatcher) {
		d.converters = registry
	}
}

// Register adds or replaces an operator
func (d *Dispatcher) Register(joberType definition.JoberType, operator Operator) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.operators[joberType] = operator
}

// Use appends middleware
func (d *Dispatcher) Use(middlewares ...Middleware) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.middlewares = append(d.middlewares, middlewares...)
}

// Middlewares returns middleware names in order
func (d *Dispatcher) Middlewares() []string {
	d.mux.RLock()
	defer d.mux.RUnlock()
	var ret []string
	for _, m := range d.middlewares {
		ret = append(ret, m.Name)
	}
	return ret
}

// Operate runs the jober over batch and writes outputs in place. It never retries.
func (d *Dispatcher) Operate(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error {
	if jober == nil {
		return fmt.Errorf("%w: nil jober", ErrUnsupportedJober)
	}
	d.mux.RLock()
	operator, ok := d.operators[jober.Type]
	middlewares := d.middlewares
	d.mux.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnsupportedJober, jober.Type)
	}
	next := Operate(operator.Operate)
	for i := len(middlewares) - 1; i >= 0; i-- {
		next = middlewares[i].Wrap(next)
	}
	return next(ctx, batch, jober)
}

// Dispatch reshapes a working copy of batch with the jober converter and operates on it.
// Stored rows are never touched; the caller persists the result.
func (d *Dispatcher) Dispatch(ctx context.Context, node *definition.Node, batch []*flow.Context) (result *Result) {
	jober := node.Jober
	result = &Result{Contexts: flow.CloneAll(batch)}
	fail := func(err error) *Result {
		joberType := definition.JoberType("")
		if jober != nil {
			joberType = jober.Type
		}
		result.Err = &DispatchError{NodeID: node.MetaID, JoberType: joberType, Retryable: Retryable(err), Err: err}
		return result
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("jober panic", zap.String("node", node.MetaID), zap.Any("panic", r))
			result = fail(fmt.Errorf("panic: %v", r))
		}
	}()
	if jober == nil {
		return fail(fmt.Errorf("%w: node has no jober", ErrUnsupportedJober))
	}
	if jober.Converter != nil {
		convert, err := d.converters.Lookup(jober.Converter)
		if err != nil {
			return fail(err)
		}
		for _, row := range result.Contexts {
			if row.Data.BusinessData, err = convert(row.Data.BusinessData); err != nil {
				return fail(fmt.Errorf("convert context %v: %w", row.ID, err))
			}
		}
	}
	if err := d.Operate(ctx, result.Contexts, jober); err != nil {
		return fail(err)
	}
	return result
}

// New creates a dispatcher
func New(options ...Option) *Dispatcher {
	ret := &Dispatcher{
		operators:  map[definition.JoberType]Operator{},
		converters: converter.NewRegistry(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}
