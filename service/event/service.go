// Package event runs the named worker pools that consume engine events.
package event

import (
	"fmt"
	"path"

	"github.com/viant/afs"
	"github.com/viant/fluxflow/service/messaging"
	"github.com/viant/fluxflow/service/messaging/fs"
	"github.com/viant/fluxflow/service/messaging/memory"
)

// Pool names
const (
	TaskCreatedPool = "task-created"
	CallbackPool    = "callback"
)

// Service creates queues for a messaging vendor
type Service struct {
	queueVendor       messaging.Vendor
	fs                afs.Service
	fsNewQueueConfig  func(name string) fs.QueueConfig
	memNewQueueConfig func(name string) memory.Config
}

// New creates a queue service
func New(queueVendor messaging.Vendor, opts ...Option) (*Service, error) {
	ret := &Service{queueVendor: queueVendor}
	for _, opt := range opts {
		opt(ret)
	}
	switch queueVendor {
	case messaging.VendorFS:
		if ret.fsNewQueueConfig == nil {
			ret.fsNewQueueConfig = func(name string) fs.QueueConfig {
				cfg := fs.DefaultConfig()
				cfg.BasePath = path.Join(cfg.BasePath, name)
				return cfg
			}
		}
		if ret.fs == nil {
			ret.fs = afs.New()
		}
	case messaging.VendorMemory:
		if ret.memNewQueueConfig == nil {
			ret.memNewQueueConfig = func(string) memory.Config { return memory.DefaultConfig() }
		}
	default:
		return nil, fmt.Errorf("unsupported queue vendor: %s", queueVendor)
	}
	return ret, nil
}

// Vendor returns the queue vendor
func (s *Service) Vendor() messaging.Vendor {
	return s.queueVendor
}

// QueueOf creates a named queue of T
func QueueOf[T any](s *Service, name string) (messaging.Queue[T], error) {
	switch s.queueVendor {
	case messaging.VendorFS:
		return fs.NewQueue[T](s.fs, s.fsNewQueueConfig(name))
	case messaging.VendorMemory:
		return memory.NewQueue[T](s.memNewQueueConfig(name)), nil
	}
	return nil, fmt.Errorf("unsupported queue vendor: %s", s.queueVendor)
}
