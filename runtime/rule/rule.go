// Package rule evaluates edge condition rules against a row's data.
package rule

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/viant/fluxflow/model/flow"
)

// Evaluate returns the boolean outcome of expression. An empty expression is true.
// The expression sees businessData, passData and contextData; businessData fields are also
// exposed under $ and as top-level variables when they are valid identifiers.
func Evaluate(expression string, data *flow.Data) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true, nil
	}
	expression = unwrap(expression)
	if data == nil {
		data = &flow.Data{}
	}
	vm := goja.New()
	business := toMap(data.BusinessData)
	if err := vm.Set("businessData", business); err != nil {
		return false, err
	}
	if err := vm.Set("$", business); err != nil {
		return false, err
	}
	if err := vm.Set("passData", toMap(data.PassData)); err != nil {
		return false, err
	}
	if err := vm.Set("contextData", toMap(data.ContextData)); err != nil {
		return false, err
	}
	for key, value := range business {
		if !identifier(key) || vm.Get(key) != nil {
			continue
		}
		if err := vm.Set(key, value); err != nil {
			return false, err
		}
	}
	value, err := vm.RunString(expression)
	if err != nil {
		return false, fmt.Errorf("rule %q: %w", expression, err)
	}
	return value.ToBoolean(), nil
}

// Validate checks that expression compiles.
func Validate(expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil
	}
	if _, err := goja.Compile("rule", unwrap(expression), false); err != nil {
		return fmt.Errorf("rule %q: %w", expression, err)
	}
	return nil
}

// unwrap strips ${...} so rules written as templates are accepted.
func unwrap(expression string) string {
	if strings.HasPrefix(expression, "${") && strings.HasSuffix(expression, "}") {
		return strings.TrimSpace(expression[2 : len(expression)-1])
	}
	return expression
}

func toMap(values flow.Values) map[string]interface{} {
	if values == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}(values)
}

func identifier(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
