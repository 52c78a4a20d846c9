package script

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/viant/fluxflow/model/flow"
)

// JS runs javascript with businessData bound to $ (and businessData); the final $ is the output
type JS struct{}

func (j *JS) Run(ctx context.Context, source string, data flow.Values) (flow.Values, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	expression := fmt.Sprintf("var $ = %s;\nvar businessData = $;\n", payload) + source
	vm := goja.New()
	if deadline, ok := ctx.Deadline(); ok {
		timer := time.AfterFunc(time.Until(deadline), func() { vm.Interrupt(context.DeadlineExceeded) })
		defer timer.Stop()
	}
	if _, err = vm.RunString(expression); err != nil {
		return nil, fmt.Errorf("error executing javascript %w", err)
	}
	val := vm.Get("$")
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	res, err := json.Marshal(val.Export())
	if err != nil {
		return nil, err
	}
	var output map[string]interface{}
	if err = json.Unmarshal(res, &output); err != nil {
		return flow.Values{"result": val.Export()}, nil
	}
	return output, nil
}
