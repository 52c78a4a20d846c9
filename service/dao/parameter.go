package dao

// Parameter represents a named List filter; a slice value matches any of its elements.
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter creates a filter parameter
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}
