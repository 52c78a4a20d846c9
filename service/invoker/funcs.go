package invoker

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/viant/fluxflow/model/types"
)

// Func is a map-in map-out invocation target
type Func func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)

// Funcs is a types.Service built from named functions; store catalogs use it
type Funcs struct {
	name    string
	targets map[string]Func
}

func (f *Funcs) Name() string {
	return f.name
}

func (f *Funcs) Methods() types.Signatures {
	var names []string
	for name := range f.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	var ret types.Signatures
	for _, name := range names {
		ret = append(ret, types.Signature{
			Name:   name,
			Input:  reflect.TypeOf(map[string]interface{}{}),
			Output: reflect.TypeOf(map[string]interface{}{}),
		})
	}
	return ret
}

func (f *Funcs) Method(name string) (types.Executable, error) {
	fn, ok := f.targets[name]
	if !ok {
		return nil, types.NewMethodNotFoundError(name)
	}
	return func(ctx context.Context, input, output interface{}) error {
		params, ok := input.(map[string]interface{})
		if !ok {
			return types.NewInvalidInputError(input)
		}
		out, ok := output.(*map[string]interface{})
		if !ok {
			return types.NewInvalidOutputError(output)
		}
		result, err := fn(ctx, params)
		if err != nil {
			return err
		}
		*out = result
		return nil
	}, nil
}

// Put adds or replaces a target
func (f *Funcs) Put(name string, fn Func) *Funcs {
	f.targets[name] = fn
	return f
}

// NewFuncs creates a function-backed service
func NewFuncs(name string) *Funcs {
	return &Funcs{name: name, targets: map[string]Func{}}
}

// Split splits a fitable reference "service.target" on its last dot.
// A reference without a dot names a target of the default service.
func Split(fitable, defaultService string) (serviceID, targetID string) {
	if idx := strings.LastIndex(fitable, "."); idx > 0 {
		return fitable[:idx], fitable[idx+1:]
	}
	return defaultService, fitable
}
