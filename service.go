package fluxflow

import (
	"context"
	"fmt"
	"net/http"
	"path"

	"github.com/redis/go-redis/v9"
	"github.com/viant/afs"
	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/model/types"
	"github.com/viant/fluxflow/policy"
	"github.com/viant/fluxflow/progress"
	"github.com/viant/fluxflow/runtime/driver"
	"github.com/viant/fluxflow/service/builtin"
	"github.com/viant/fluxflow/service/converter"
	defrepo "github.com/viant/fluxflow/service/dao/definition"
	deffs "github.com/viant/fluxflow/service/dao/definition/fs"
	defmemory "github.com/viant/fluxflow/service/dao/definition/memory"
	"github.com/viant/fluxflow/service/dao/flowctx"
	ctxmemory "github.com/viant/fluxflow/service/dao/flowctx/memory"
	ctxredis "github.com/viant/fluxflow/service/dao/flowctx/redis"
	ctxsqlite "github.com/viant/fluxflow/service/dao/flowctx/sqlite"
	"github.com/viant/fluxflow/service/event"
	"github.com/viant/fluxflow/service/exception"
	"github.com/viant/fluxflow/service/filter"
	"github.com/viant/fluxflow/service/invoker"
	"github.com/viant/fluxflow/service/jober"
	"github.com/viant/fluxflow/service/jober/echo"
	"github.com/viant/fluxflow/service/jober/generic"
	jhttp "github.com/viant/fluxflow/service/jober/http"
	"github.com/viant/fluxflow/service/jober/script"
	"github.com/viant/fluxflow/service/jober/store"
	"github.com/viant/fluxflow/service/messaging/fs"
	"github.com/viant/fluxflow/service/messaging/memory"
	taskmemory "github.com/viant/fluxflow/service/task/memory"
	"github.com/viant/fluxflow/tracing"
	"go.uber.org/zap"
)

// Service assembles the engine from configuration and options
type Service struct {
	config       *Config
	runtime      *Runtime
	definitions  defrepo.Repository
	contexts     flowctx.Repository
	redisClient  redis.UniversalClient
	definitionFS afs.Service
	queueFS      afs.Service
	services     []types.Service
	operators    map[definition.JoberType]jober.Operator
	middlewares  []jober.Middleware
	filters      *filter.Registry
	converters   *converter.Registry
	httpClient   *http.Client
	policy       *policy.Policy
	closers      []func() error
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.policy == nil {
		s.policy = policy.FromConfig(s.config.Policy)
	}
	if err := s.ensureRepositories(); err != nil {
		return err
	}
	inv := invoker.New(builtin.NewNotify(nil), builtin.NewNop())
	for _, service := range s.services {
		inv.Register(service)
	}
	events, err := s.eventService()
	if err != nil {
		return err
	}
	taskCreatedQueue, err := event.QueueOf[flow.TaskCreated](events, event.TaskCreatedPool)
	if err != nil {
		return err
	}
	callbackQueue, err := event.QueueOf[flow.Callback](events, event.CallbackPool)
	if err != nil {
		return err
	}
	r := s.runtime
	r.taskCreated = event.NewPool(event.TaskCreatedPool, s.config.Pools.TaskCreatedWorkers, taskCreatedQueue,
		func(e *flow.TaskCreated) string { return e.StreamID },
		func(ctx context.Context, e *flow.TaskCreated) error { return acked(r.driver.HandleTaskCreated(ctx, e)) })
	r.callbacks = event.NewPool(event.CallbackPool, s.config.Pools.CallbackWorkers, callbackQueue,
		func(e *flow.Callback) string { return e.StreamID },
		func(ctx context.Context, e *flow.Callback) error { return acked(r.driver.HandleCallback(ctx, e)) })
	r.tasks = taskmemory.New(taskmemory.WithPublisher(r.callbacks))
	r.definitions = s.definitions
	r.contexts = s.contexts
	r.invoker = inv
	r.progress = progress.NewRegistry(nil)
	r.sweepInterval = s.config.Driver.SweepInterval

	driverOptions := []driver.Option{
		driver.WithTasks(r.tasks),
		driver.WithTaskCreatedPublisher(r.taskCreated),
		driver.WithDispatcher(s.dispatcher(inv)),
		driver.WithInvoker(inv),
		driver.WithNotifier(exception.New(inv, s.config.Driver.NotifyTimeout)),
		driver.WithFilters(s.filters),
		driver.WithConverters(s.converters),
		driver.WithProgress(r.progress),
		driver.WithRetryPolicy(driver.RetryPolicy{
			MaxRetries:      s.config.Driver.RetryMaxRetries,
			InitialInterval: s.config.Driver.RetryInitialInterval,
			MaxInterval:     s.config.Driver.RetryMaxInterval,
			Multiplier:      s.config.Driver.RetryMultiplier,
		}),
	}
	if s.config.Driver.PendingTimeout > 0 {
		driverOptions = append(driverOptions, driver.WithPendingPolicy(driver.PendingTimeout(s.config.Driver.PendingTimeout)))
	}
	r.driver = driver.New(s.definitions, s.contexts, driverOptions...)
	r.closers = s.closers
	if s.config.Tracing.Enabled {
		if err = tracing.Init("fluxflow", Version, s.config.Tracing.Output); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	return nil
}

func (s *Service) dispatcher(inv invoker.Invoker) *jober.Dispatcher {
	var httpOptions []jhttp.Option
	if s.httpClient != nil {
		httpOptions = append(httpOptions, jhttp.WithClient(s.httpClient))
	}
	options := []jober.Option{
		jober.WithConverters(s.converters),
		jober.WithOperator(definition.JoberEcho, echo.New()),
		jober.WithOperator(definition.JoberHTTP, jhttp.New(httpOptions...)),
		jober.WithOperator(definition.JoberGenericable, generic.New(inv)),
		jober.WithOperator(definition.JoberStore, store.New(inv)),
		jober.WithOperator(definition.JoberScript, script.New()),
		jober.WithMiddleware(jober.Defaults(s.policy)...),
	}
	for joberType, operator := range s.operators {
		options = append(options, jober.WithOperator(joberType, operator))
	}
	if len(s.middlewares) > 0 {
		options = append(options, jober.WithMiddleware(s.middlewares...))
	}
	return jober.New(options...)
}

func (s *Service) eventService() (*event.Service, error) {
	queue := s.config.Queue
	options := []event.Option{
		event.WithNewMemoryQueueConfig(func(string) memory.Config {
			cfg := memory.DefaultConfig()
			cfg.MaxRetries = queue.MaxRetries
			cfg.RetryDelay = queue.RetryDelay
			return cfg
		}),
		event.WithNewFsQueueConfig(func(name string) fs.QueueConfig {
			cfg := fs.DefaultConfig()
			cfg.BasePath = path.Join(queue.BasePath, name)
			cfg.MaxRetries = queue.MaxRetries
			cfg.RetryDelay = queue.RetryDelay
			return cfg
		}),
	}
	if s.queueFS != nil {
		options = append(options, event.WithFS(s.queueFS))
	}
	return event.New(queue.Vendor, options...)
}

func (s *Service) ensureRepositories() error {
	repository := s.config.Repository
	if s.definitions == nil {
		if repository.DefinitionURL == "" {
			s.definitions = defmemory.New()
		} else {
			var options []deffs.Option
			if s.definitionFS != nil {
				options = append(options, deffs.WithFS(s.definitionFS))
			}
			definitions, err := deffs.New(repository.DefinitionURL, options...)
			if err != nil {
				return fmt.Errorf("failed to create definition repository: %w", err)
			}
			s.definitions = definitions
		}
	}
	if s.contexts != nil {
		return nil
	}
	switch repository.Vendor {
	case RepositoryMemory:
		s.contexts = ctxmemory.New()
	case RepositorySQLite:
		db, err := ctxsqlite.Open(repository.DSN)
		if err != nil {
			return err
		}
		contexts, err := ctxsqlite.New(db)
		if err != nil {
			_ = db.Close()
			return err
		}
		s.contexts = contexts
		s.closers = append(s.closers, db.Close)
	case RepositoryRedis:
		client := s.redisClient
		if client == nil {
			created := redis.NewClient(&redis.Options{Addr: repository.RedisAddr})
			s.closers = append(s.closers, created.Close)
			client = created
		}
		s.contexts = ctxredis.New(client, repository.RedisPrefix)
	default:
		return fmt.Errorf("unsupported repository vendor: %v", repository.Vendor)
	}
	return nil
}

// Runtime returns the engine runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// acked turns state errors into successful handling so the message is not redelivered
func acked(err error) error {
	if err != nil && driver.IsStateError(err) {
		logger.Warn("dropping inconsistent event", zap.Error(err))
		return nil
	}
	return err
}

// New creates an engine
func New(options ...Option) (*Service, error) {
	ret := &Service{
		runtime:    &Runtime{},
		filters:    filter.NewRegistry(),
		converters: converter.NewRegistry(),
	}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}
