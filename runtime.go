package fluxflow

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/progress"
	"github.com/viant/fluxflow/runtime/driver"
	"github.com/viant/fluxflow/service/compiler"
	"github.com/viant/fluxflow/service/dao"
	defrepo "github.com/viant/fluxflow/service/dao/definition"
	"github.com/viant/fluxflow/service/dao/flowctx"
	"github.com/viant/fluxflow/service/event"
	"github.com/viant/fluxflow/service/invoker"
	"github.com/viant/fluxflow/service/task"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Version is reported to tracing
const Version = "0.1.0"

// Runtime represents a running flow engine
type Runtime struct {
	driver        *driver.Driver
	definitions   defrepo.Repository
	contexts      flowctx.Repository
	tasks         task.Service
	invoker       *invoker.Registry
	progress      *progress.Registry
	taskCreated   *event.Pool[flow.TaskCreated]
	callbacks     *event.Pool[flow.Callback]
	sweepInterval time.Duration
	closers       []func() error
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Start starts event pools and the retry and pending sweep
func (r *Runtime) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	if err := r.taskCreated.Start(ctx); err != nil {
		return err
	}
	if err := r.callbacks.Start(ctx); err != nil {
		r.taskCreated.Stop()
		return err
	}
	r.wg.Add(1)
	go r.sweep(ctx)
	return nil
}

// Shutdown stops pools and the sweep and releases storage clients
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.taskCreated.Stop()
	r.callbacks.Stop()
	var errs error
	for _, closer := range r.closers {
		errs = multierr.Append(errs, closer())
	}
	return errs
}

func (r *Runtime) sweep(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep redrives due RETRYABLE rows and evicts expired PENDING rows once
func (r *Runtime) Sweep(ctx context.Context) {
	if count, err := r.driver.Redrive(ctx); err != nil {
		logger.Warn("redrive failed", zap.Error(err))
	} else if count > 0 {
		logger.Debug("redrove rows", zap.Int("rows", count))
	}
	if count, err := r.driver.EvictPending(ctx); err != nil {
		logger.Warn("pending eviction failed", zap.Error(err))
	} else if count > 0 {
		logger.Info("evicted pending rows", zap.Int("rows", count))
	}
}

// Deploy compiles a JSON or YAML graph document and publishes the definition.
// Re-deploying an identical document is a no-op; a different graph under the same stream id is rejected.
func (r *Runtime) Deploy(ctx context.Context, document []byte) (*definition.Definition, error) {
	def, err := Compile(document)
	if err != nil {
		return nil, err
	}
	if err = r.definitions.Save(ctx, def); err != nil {
		return nil, err
	}
	logger.Info("definition deployed", zap.String("stream", def.StreamID()), zap.Int("nodes", len(def.Nodes)))
	return def, nil
}

// Compile compiles a JSON document, or YAML when the document does not start with an object
func Compile(document []byte) (*definition.Definition, error) {
	if trimmed := bytes.TrimSpace(document); len(trimmed) > 0 && trimmed[0] == '{' {
		return compiler.Compile(document)
	}
	return compiler.CompileYAML(document)
}

// Definition returns a published definition
func (r *Runtime) Definition(ctx context.Context, metaID, version string) (*definition.Definition, error) {
	return r.definitions.FindByMetaIDAndVersion(ctx, metaID, version)
}

// Definitions lists published definitions
func (r *Runtime) Definitions(ctx context.Context, parameters ...*dao.Parameter) ([]*definition.Definition, error) {
	return r.definitions.List(ctx, parameters...)
}

// LookupTypes returns the path from the outermost ancestor to the named type
func (r *Runtime) LookupTypes(ctx context.Context, metaID, version, idOrName string) ([]*definition.TypeNode, error) {
	def, err := r.Definition(ctx, metaID, version)
	if err != nil {
		return nil, err
	}
	return definition.Lookup(def, idOrName), nil
}

// StartProcess starts an instance of a stream with business data
func (r *Runtime) StartProcess(ctx context.Context, streamID string, businessData map[string]interface{}) (*flow.Context, error) {
	return r.driver.Start(ctx, streamID, businessData)
}

// Trace returns rows and counters of an instance
func (r *Runtime) Trace(ctx context.Context, traceID string) (*driver.Trace, error) {
	return r.driver.Trace(ctx, traceID)
}

// WaitForTrace polls until no row of the instance can move or the timeout elapses
func (r *Runtime) WaitForTrace(ctx context.Context, traceID string, timeout time.Duration) (*driver.Trace, error) {
	deadline := time.Now().Add(timeout)
	for {
		trace, err := r.Trace(ctx, traceID)
		if err != nil {
			return nil, err
		}
		if trace.Done() {
			return trace, nil
		}
		if time.Now().After(deadline) {
			return trace, fmt.Errorf("trace %v not done after %v", traceID, timeout)
		}
		select {
		case <-ctx.Done():
			return trace, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Terminate stops an instance
func (r *Runtime) Terminate(ctx context.Context, traceID string) (int, error) {
	return r.driver.Terminate(ctx, traceID)
}

// Tasks returns the manual task service
func (r *Runtime) Tasks() task.Service {
	return r.tasks
}

// Invoker returns the invocation registry shared by jobers, callbacks and exception handlers
func (r *Runtime) Invoker() *invoker.Registry {
	return r.invoker
}

// Progress returns counters of every tracked instance
func (r *Runtime) Progress() []progress.Progress {
	return r.progress.List()
}

// Stats returns event pool counters
func (r *Runtime) Stats() []event.Stats {
	return []event.Stats{r.taskCreated.Stats(), r.callbacks.Stats()}
}
