package fluxflow

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/viant/afs"
	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/types"
	"github.com/viant/fluxflow/policy"
	"github.com/viant/fluxflow/service/converter"
	defrepo "github.com/viant/fluxflow/service/dao/definition"
	"github.com/viant/fluxflow/service/dao/flowctx"
	"github.com/viant/fluxflow/service/filter"
	"github.com/viant/fluxflow/service/jober"
	"github.com/viant/fluxflow/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Option configures a Service
type Option func(s *Service)

// WithConfig replaces the default configuration
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithDefinitionRepository sets definition storage, overriding repository.definitionURL
func WithDefinitionRepository(repository defrepo.Repository) Option {
	return func(s *Service) { s.definitions = repository }
}

// WithContextRepository sets context row storage, overriding repository.vendor
func WithContextRepository(repository flowctx.Repository) Option {
	return func(s *Service) { s.contexts = repository }
}

// WithRedisClient sets the client used by the redis context repository
func WithRedisClient(client redis.UniversalClient) Option {
	return func(s *Service) { s.redisClient = client }
}

// WithDefinitionFS sets the storage used by the fs definition repository
func WithDefinitionFS(fs afs.Service) Option {
	return func(s *Service) { s.definitionFS = fs }
}

// WithQueueFS sets the storage used by fs queues
func WithQueueFS(fs afs.Service) Option {
	return func(s *Service) { s.queueFS = fs }
}

// WithServices registers invocation targets for generic and store jobers, callbacks and exception handlers
func WithServices(services ...types.Service) Option {
	return func(s *Service) { s.services = append(s.services, services...) }
}

// WithOperator registers or replaces a jober operator
func WithOperator(joberType definition.JoberType, operator jober.Operator) Option {
	return func(s *Service) {
		if s.operators == nil {
			s.operators = map[definition.JoberType]jober.Operator{}
		}
		s.operators[joberType] = operator
	}
}

// WithMiddleware appends operator middleware after the defaults
func WithMiddleware(middlewares ...jober.Middleware) Option {
	return func(s *Service) { s.middlewares = append(s.middlewares, middlewares...) }
}

// WithFilter registers a custom filter type
func WithFilter(filterType definition.FilterType, factory filter.Factory) Option {
	return func(s *Service) { s.filters.Register(filterType, factory) }
}

// WithConverter registers a custom converter type
func WithConverter(converterType definition.ConverterType, factory converter.Factory) Option {
	return func(s *Service) { s.converters.Register(converterType, factory) }
}

// WithHTTPClient sets the client used by the HTTP jober
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.httpClient = client }
}

// WithPolicy restricts dispatchable jober types and fitables; it overrides the config policy
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger installs the process wide logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { logger.Set(l) }
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
