// Package generic invokes every fitable of a genericable through the invoker.
package generic

import (
	"context"
	"fmt"

	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/invoker"
)

// Operator calls each fitable with the row's ordered parameters and merges outputs in fitable order.
type Operator struct {
	invoker invoker.Invoker
}

func (o *Operator) Operate(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error {
	spec := jober.Generic
	if spec == nil || spec.GenericableID == "" {
		return fmt.Errorf("generic jober %v: genericableId is required", jober.NodeID)
	}
	fitables := jober.Fitables
	if len(fitables) == 0 {
		fitables = o.invoker.Targets(spec.GenericableID)
	}
	if len(fitables) == 0 {
		return fmt.Errorf("generic jober %v: no fitables for %v", jober.NodeID, spec.GenericableID)
	}
	for _, row := range batch {
		args := Args(row.Data.BusinessData, spec.Params)
		output := flow.Values{}
		for _, fitable := range fitables {
			result, err := o.invoker.Invoke(ctx, spec.GenericableID, fitable, args...)
			if err != nil {
				return fmt.Errorf("context %v, fitable %v: %w", row.ID, fitable, err)
			}
			Merge(output, fitable, result)
		}
		row.Data.BusinessData = output
	}
	return nil
}

// Args returns parameter values in declared order; without params the whole businessData is the only arg.
func Args(data flow.Values, params []string) []interface{} {
	if len(params) == 0 {
		return []interface{}{map[string]interface{}(data.Clone())}
	}
	ret := make([]interface{}, 0, len(params))
	for _, param := range params {
		value, _ := data.Get(param)
		ret = append(ret, flow.CloneValue(value))
	}
	return ret
}

// Merge folds an invocation result into output; non map results are keyed by target
func Merge(output flow.Values, target string, result interface{}) {
	if result == nil {
		return
	}
	if values, ok := flow.AsValues(result); ok {
		output.Merge(values)
		return
	}
	output[target] = result
}

// New creates a generic operator
func New(inv invoker.Invoker) *Operator {
	return &Operator{invoker: inv}
}
