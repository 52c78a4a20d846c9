package memory

import (
	"github.com/viant/fluxflow/service/task"
)

type Option func(*service)

// WithPublisher sets where resolved and failed tasks publish their callbacks
func WithPublisher(publisher task.Publisher) Option {
	return func(s *service) { s.publisher = publisher }
}
