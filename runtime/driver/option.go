package driver

import (
	"time"

	"github.com/viant/fluxflow/progress"
	"github.com/viant/fluxflow/runtime/correlation"
	"github.com/viant/fluxflow/service/converter"
	"github.com/viant/fluxflow/service/exception"
	"github.com/viant/fluxflow/service/filter"
	"github.com/viant/fluxflow/service/invoker"
	"github.com/viant/fluxflow/service/jober"
	"github.com/viant/fluxflow/service/task"
)

type Option func(d *Driver)

// WithDispatcher sets the jober dispatcher
func WithDispatcher(dispatcher *jober.Dispatcher) Option {
	return func(d *Driver) { d.dispatcher = dispatcher }
}

// WithTasks sets the manual task service
func WithTasks(tasks task.Service) Option {
	return func(d *Driver) { d.tasks = tasks }
}

// WithTaskCreatedPublisher routes automatic work through a queue; without it work runs inline.
func WithTaskCreatedPublisher(publisher Publisher) Option {
	return func(d *Driver) { d.taskCreated = publisher }
}

// WithInvoker sets the remote invocation collaborator used by fitable callbacks and exception routing
func WithInvoker(inv invoker.Invoker) Option {
	return func(d *Driver) { d.invoker = inv }
}

// WithNotifier sets the exception router
func WithNotifier(notifier *exception.Notifier) Option {
	return func(d *Driver) { d.notifier = notifier }
}

// WithFilters sets the filter registry
func WithFilters(filters *filter.Registry) Option {
	return func(d *Driver) { d.filters = filters }
}

// WithConverters sets the converter registry used for task line items
func WithConverters(converters *converter.Registry) Option {
	return func(d *Driver) { d.converters = converters }
}

// WithJoins sets the join tracker
func WithJoins(joins *correlation.Tracker) Option {
	return func(d *Driver) { d.joins = joins }
}

// WithProgress sets the per trace counters registry
func WithProgress(registry *progress.Registry) Option {
	return func(d *Driver) { d.progress = registry }
}

// WithRetryPolicy sets the default retry policy
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(d *Driver) { d.retry = policy }
}

// WithPendingPolicy sets the pending eviction policy
func WithPendingPolicy(policy PendingPolicy) Option {
	return func(d *Driver) { d.pending = policy }
}

// WithNotifyTimeout bounds the exception fan-out of the default notifier
func WithNotifyTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.notifyTimeout = timeout }
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}
