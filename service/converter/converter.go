// Package converter reshapes business data at node boundaries.
package converter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/oliveagle/jsonpath"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

// ErrUnsupported is returned for converter types with no registered factory
var ErrUnsupported = errors.New("converter: unsupported type")

// Func reshapes input into a new map. Implementations must not mutate input.
type Func func(input flow.Values) (flow.Values, error)

// Factory builds a Func from converter configuration
type Factory func(spec *definition.Converter) (Func, error)

// Registry resolves converter configuration to functions
type Registry struct {
	mux       sync.RWMutex
	factories map[definition.ConverterType]Factory
}

// Register adds or replaces a factory
func (r *Registry) Register(converterType definition.ConverterType, factory Factory) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.factories[converterType] = factory
}

// Lookup returns a converter for spec; a nil spec yields a cloning identity converter.
func (r *Registry) Lookup(spec *definition.Converter) (Func, error) {
	if spec == nil {
		return Identity, nil
	}
	r.mux.RLock()
	factory, ok := r.factories[spec.Type]
	r.mux.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, spec.Type)
	}
	return factory(spec)
}

// Apply converts input with spec
func (r *Registry) Apply(spec *definition.Converter, input flow.Values) (flow.Values, error) {
	fn, err := r.Lookup(spec)
	if err != nil {
		return nil, err
	}
	return fn(input)
}

// Identity returns a deep copy of input
func Identity(input flow.Values) (flow.Values, error) {
	return input.Clone(), nil
}

// NewRegistry creates a registry with the built-in converters
func NewRegistry() *Registry {
	ret := &Registry{factories: map[definition.ConverterType]Factory{}}
	ret.Register(definition.ConverterMapping, NewMapping)
	return ret
}

// NewMapping builds a mapping converter
func NewMapping(spec *definition.Converter) (Func, error) {
	for _, mapping := range spec.Mappings {
		if err := validate(mapping); err != nil {
			return nil, err
		}
	}
	mappings := spec.Mappings
	return func(input flow.Values) (flow.Values, error) {
		return mapAll(mappings, map[string]interface{}(input))
	}, nil
}

func validate(mapping *definition.Mapping) error {
	switch mapping.From {
	case definition.FromReference:
		ref, ok := mapping.Value.(string)
		if !ok {
			return fmt.Errorf("mapping %s: reference must be a string", mapping.Name)
		}
		if _, err := jsonpath.Compile(ref); err != nil {
			return fmt.Errorf("mapping %s: invalid reference %q: %w", mapping.Name, ref, err)
		}
	case definition.FromExpand:
		for _, child := range mapping.Children {
			if err := validate(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func mapAll(mappings []*definition.Mapping, input map[string]interface{}) (flow.Values, error) {
	output := flow.Values{}
	for _, mapping := range mappings {
		switch mapping.From {
		case definition.FromReference:
			value, err := jsonpath.JsonPathLookup(input, mapping.Value.(string))
			if err != nil {
				value = nil
			}
			output[mapping.Name] = flow.CloneValue(value)
		case definition.FromExpand:
			nested, err := mapAll(mapping.Children, input)
			if err != nil {
				return nil, err
			}
			output[mapping.Name] = map[string]interface{}(nested)
		default:
			output[mapping.Name] = flow.CloneValue(mapping.Value)
		}
	}
	return output, nil
}
