// Package store invokes store catalog entries by unique name.
package store

import (
	"context"
	"fmt"

	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/invoker"
	"github.com/viant/fluxflow/service/jober/generic"
)

// Operator passes named parameters to the catalog entry and replaces businessData with its output
type Operator struct {
	invoker invoker.Invoker
}

func (o *Operator) Operate(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error {
	spec := jober.Store
	if spec == nil || spec.UniqueName == "" {
		return fmt.Errorf("store jober %v: uniqueName is required", jober.NodeID)
	}
	for _, row := range batch {
		result, err := o.invoker.Invoke(ctx, invoker.StoreServiceID, spec.UniqueName, Params(row.Data.BusinessData, spec.Params))
		if err != nil {
			return fmt.Errorf("context %v, store %v: %w", row.ID, spec.UniqueName, err)
		}
		output := flow.Values{}
		generic.Merge(output, spec.UniqueName, result)
		row.Data.BusinessData = output
	}
	return nil
}

// Params returns named parameters; without names the whole businessData is passed
func Params(data flow.Values, names []string) map[string]interface{} {
	if len(names) == 0 {
		return data.Clone()
	}
	ret := make(map[string]interface{}, len(names))
	for _, name := range names {
		if value, ok := data.Get(name); ok {
			ret[name] = flow.CloneValue(value)
		}
	}
	return ret
}

// New creates a store operator
func New(inv invoker.Invoker) *Operator {
	return &Operator{invoker: inv}
}
