// Package echo provides the identity jober operator.
package echo

import (
	"context"

	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

// Operator returns each row's businessData unchanged
type Operator struct{}

func (o *Operator) Operate(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error {
	for _, row := range batch {
		if row.Data.BusinessData == nil {
			row.Data.BusinessData = flow.Values{}
		}
	}
	return ctx.Err()
}

// New creates an echo operator
func New() *Operator {
	return &Operator{}
}
