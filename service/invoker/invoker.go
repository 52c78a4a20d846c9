// Package invoker executes locally registered services on behalf of jobers and callbacks.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/viant/fluxflow/model/types"
	"github.com/viant/structology/conv"
)

// StoreServiceID is the service id holding store catalog entries
const StoreServiceID = "store"

// ErrServiceNotFound is returned when no service is registered under an id
var ErrServiceNotFound = errors.New("invoker: service not found")

// Invoker calls a target of a service
type Invoker interface {
	Invoke(ctx context.Context, serviceID, targetID string, args ...interface{}) (interface{}, error)
	Targets(serviceID string) []string
}

// Registry is the local Invoker backed by types.Service implementations
type Registry struct {
	services  map[string]types.Service
	converter *conv.Converter
	mux       sync.RWMutex
}

// Register registers a service under its name
func (r *Registry) Register(service types.Service) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.services[service.Name()] = service
}

// Lookup returns a service by name
func (r *Registry) Lookup(name string) types.Service {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.services[name]
}

// Services returns registered service ids
func (r *Registry) Services() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()
	var ret []string
	for name := range r.services {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Targets returns target names of a service
func (r *Registry) Targets(serviceID string) []string {
	service := r.Lookup(serviceID)
	if service == nil {
		return nil
	}
	return service.Methods().Names()
}

// Invoke converts args into the target's input type, runs it and returns its output
func (r *Registry) Invoke(ctx context.Context, serviceID, targetID string, args ...interface{}) (interface{}, error) {
	service := r.Lookup(serviceID)
	if service == nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceNotFound, serviceID)
	}
	method, err := service.Method(targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to find method %v for service %v: %w", targetID, serviceID, err)
	}
	signature := service.Methods().Lookup(targetID)
	if signature == nil {
		return nil, fmt.Errorf("service %v: %w", serviceID, types.NewMethodNotFoundError(targetID))
	}
	input, err := r.input(signature.Input, args)
	if err != nil {
		return nil, fmt.Errorf("service %v, method %v: %w", serviceID, targetID, err)
	}
	output := newInstancePtr(signature.Output)
	if err = method(ctx, input, output); err != nil {
		return nil, err
	}
	if signature.Output == nil || signature.Output.Kind() != reflect.Ptr {
		return reflect.ValueOf(output).Elem().Interface(), nil
	}
	return output, nil
}

// input binds positional args to the input type; struct inputs take args in field order
func (r *Registry) input(aType reflect.Type, args []interface{}) (interface{}, error) {
	if aType == nil {
		if len(args) == 1 {
			return args[0], nil
		}
		return args, nil
	}
	var value interface{} = args
	elem := aType
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	switch {
	case len(args) == 1:
		value = args[0]
	case elem.Kind() == reflect.Struct:
		fields := map[string]interface{}{}
		position := 0
		for i := 0; i < elem.NumField() && position < len(args); i++ {
			if field := elem.Field(i); field.IsExported() {
				fields[field.Name] = args[position]
				position++
			}
		}
		value = fields
	}
	instance := newInstancePtr(aType)
	if err := r.converter.Convert(value, instance); err != nil {
		return nil, types.NewInvalidInputError(value)
	}
	if aType.Kind() != reflect.Ptr {
		return reflect.ValueOf(instance).Elem().Interface(), nil
	}
	return instance, nil
}

func newInstancePtr(t reflect.Type) interface{} {
	if t == nil {
		return &map[string]interface{}{}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}

// New creates an invoker registry
func New(services ...types.Service) *Registry {
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	options.AccessUnexported = true
	ret := &Registry{
		services:  map[string]types.Service{},
		converter: conv.NewConverter(options),
	}
	for _, service := range services {
		ret.Register(service)
	}
	return ret
}
