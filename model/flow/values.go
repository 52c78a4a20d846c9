package flow

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Values is a schema-less key/value container. Typed getters coerce stored values, so
// callers never type-assert business data themselves.
type Values map[string]interface{}

// Get returns a value by key; dotted keys walk nested maps.
func (v Values) Get(key string) (interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if value, ok := v[key]; ok {
		return value, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}
	var current interface{} = map[string]interface{}(v)
	for _, part := range strings.Split(key, ".") {
		aMap, err := cast.ToStringMapE(current)
		if err != nil {
			return nil, false
		}
		next, ok := aMap[part]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func (v Values) GetString(key string) string {
	value, _ := v.Get(key)
	return cast.ToString(value)
}

func (v Values) GetInt(key string) int {
	value, _ := v.Get(key)
	return cast.ToInt(value)
}

func (v Values) GetFloat(key string) float64 {
	value, _ := v.Get(key)
	return cast.ToFloat64(value)
}

func (v Values) GetBool(key string) bool {
	value, _ := v.Get(key)
	return cast.ToBool(value)
}

// GetMap returns a nested map or nil
func (v Values) GetMap(key string) Values {
	value, ok := v.Get(key)
	if !ok {
		return nil
	}
	aMap, err := cast.ToStringMapE(value)
	if err != nil {
		return nil
	}
	return aMap
}

// Set stores a value
func (v Values) Set(key string, value interface{}) {
	v[key] = value
}

// Has returns true if key is present
func (v Values) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Keys returns sorted keys
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge copies every entry of other into v, overriding existing keys.
func (v Values) Merge(other map[string]interface{}) Values {
	for k, value := range other {
		v[k] = value
	}
	return v
}

// Clone returns a deep copy; nested maps and slices are copied, scalars shared.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	ret := make(Values, len(v))
	for k, value := range v {
		ret[k] = CloneValue(value)
	}
	return ret
}

// CloneValue deep copies maps and slices, sharing scalars.
func CloneValue(value interface{}) interface{} {
	switch actual := value.(type) {
	case Values:
		return actual.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Values(actual).Clone())
	case []interface{}:
		ret := make([]interface{}, len(actual))
		for i, item := range actual {
			ret[i] = CloneValue(item)
		}
		return ret
	default:
		return value
	}
}

// AsValues coerces an arbitrary value into Values; structs go through JSON.
func AsValues(value interface{}) (Values, bool) {
	switch actual := value.(type) {
	case nil:
		return nil, false
	case Values:
		return actual, true
	case map[string]interface{}:
		return actual, true
	}
	if aMap, err := cast.ToStringMapE(value); err == nil {
		return aMap, true
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	var ret map[string]interface{}
	if err = json.Unmarshal(data, &ret); err != nil || ret == nil {
		return nil, false
	}
	return ret, true
}
