// Package filter gates node admission for batches of pending context rows.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

// ErrUnsupported is returned for filter types with no registered implementation
var ErrUnsupported = errors.New("filter: unsupported type")

// Result represents filter decision. Rows outside Groups stay pending.
type Result struct {
	Proceed bool
	Groups  [][]*flow.Context
}

// Filter decides which rows of a batch may proceed together
type Filter interface {
	Evaluate(batch []*flow.Context, node *definition.Node) Result
}

// Func adapts a function to Filter
type Func func(batch []*flow.Context, node *definition.Node) Result

func (f Func) Evaluate(batch []*flow.Context, node *definition.Node) Result {
	return f(batch, node)
}

// Factory builds a filter from configuration
type Factory func(spec *definition.Filter) Filter

// Registry resolves filter configuration
type Registry struct {
	mux       sync.RWMutex
	factories map[definition.FilterType]Factory
}

// NewRegistry creates a registry with built-in filters
func NewRegistry() *Registry {
	ret := &Registry{factories: map[definition.FilterType]Factory{}}
	ret.Register(definition.FilterMinimumSize, MinimumSize)
	ret.Register(definition.FilterSameBatch, SameBatch)
	ret.Register(definition.FilterChunkSize, ChunkSize)
	return ret
}

// Register adds or replaces a factory
func (r *Registry) Register(filterType definition.FilterType, factory Factory) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.factories[filterType] = factory
}

// Lookup returns a filter for spec
func (r *Registry) Lookup(spec *definition.Filter) (Filter, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil filter", ErrUnsupported)
	}
	r.mux.RLock()
	factory, ok := r.factories[spec.Type]
	r.mux.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, spec.Type)
	}
	return factory(spec), nil
}

// MinimumSize admits the whole batch once it holds at least threshold rows.
func MinimumSize(spec *definition.Filter) Filter {
	threshold := max(spec.Threshold, 1)
	return Func(func(batch []*flow.Context, _ *definition.Node) Result {
		if len(batch) < threshold {
			return Result{}
		}
		return Result{Proceed: true, Groups: [][]*flow.Context{ordered(batch)}}
	})
}

// SameBatch groups rows by upstream batch and admits each group reaching threshold.
func SameBatch(spec *definition.Filter) Filter {
	threshold := max(spec.Threshold, 1)
	return Func(func(batch []*flow.Context, _ *definition.Node) Result {
		byBatch := map[string][]*flow.Context{}
		var keys []string
		for _, row := range ordered(batch) {
			if _, ok := byBatch[row.BatchID]; !ok {
				keys = append(keys, row.BatchID)
			}
			byBatch[row.BatchID] = append(byBatch[row.BatchID], row)
		}
		result := Result{}
		for _, key := range keys {
			if group := byBatch[key]; len(group) >= threshold {
				result.Groups = append(result.Groups, group)
			}
		}
		result.Proceed = len(result.Groups) > 0
		return result
	})
}

// ChunkSize admits groups of exactly threshold rows; the remainder waits.
func ChunkSize(spec *definition.Filter) Filter {
	size := max(spec.Threshold, 1)
	return Func(func(batch []*flow.Context, _ *definition.Node) Result {
		rows := ordered(batch)
		result := Result{}
		for len(rows) >= size {
			result.Groups = append(result.Groups, rows[:size])
			rows = rows[size:]
		}
		result.Proceed = len(result.Groups) > 0
		return result
	})
}

// ordered returns rows sorted by creation time then id so grouping is deterministic.
func ordered(batch []*flow.Context) []*flow.Context {
	ret := append([]*flow.Context(nil), batch...)
	sort.SliceStable(ret, func(i, j int) bool {
		if !ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].CreatedAt.Before(ret[j].CreatedAt)
		}
		return ret[i].ID < ret[j].ID
	})
	return ret
}
