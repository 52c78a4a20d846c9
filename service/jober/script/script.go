// Package script runs embedded js or lua scripts over each row's businessData.
package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

const (
	LanguageJS  = "js"
	LanguageLua = "lua"
)

// Engine executes source against businessData and returns the new businessData.
// A nil result leaves businessData unchanged.
type Engine interface {
	Run(ctx context.Context, source string, data flow.Values) (flow.Values, error)
}

// Operator dispatches to the engine registered for the script language
type Operator struct {
	engines map[string]Engine
}

func (o *Operator) Operate(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error {
	spec := jober.Script
	if spec == nil || strings.TrimSpace(spec.Source) == "" {
		return fmt.Errorf("script jober %v: source is required", jober.NodeID)
	}
	engine, ok := o.engines[strings.ToLower(spec.Language)]
	if !ok {
		return fmt.Errorf("script jober %v: unsupported language %q", jober.NodeID, spec.Language)
	}
	for _, row := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		output, err := engine.Run(ctx, spec.Source, row.Data.BusinessData.Clone())
		if err != nil {
			return fmt.Errorf("context %v: %w", row.ID, err)
		}
		if output != nil {
			row.Data.BusinessData = output
		}
	}
	return nil
}

// New creates a script operator with js and lua engines
func New() *Operator {
	return &Operator{engines: map[string]Engine{
		LanguageJS:  &JS{},
		LanguageLua: NewLua(),
	}}
}
