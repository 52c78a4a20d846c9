// Package criteria matches entity attributes against dao list parameters.
package criteria

import (
	"strings"

	"github.com/viant/fluxflow/service/dao"
)

// Match reports whether every parameter matches the attribute of the same name.
// Names compare case-insensitively; unknown names never match.
func Match(attributes map[string]string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		actual, ok := lookup(attributes, parameter.Name)
		if !ok {
			return false
		}
		switch expected := parameter.Value.(type) {
		case string:
			if actual != expected {
				return false
			}
		case []string:
			if !contains(expected, actual) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func lookup(attributes map[string]string, name string) (string, bool) {
	if value, ok := attributes[name]; ok {
		return value, true
	}
	for k, v := range attributes {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func contains(values []string, candidate string) bool {
	for _, value := range values {
		if value == candidate {
			return true
		}
	}
	return false
}
