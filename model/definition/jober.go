package definition

// JoberType represents an automatic task kind
type JoberType string

const (
	JoberEcho        JoberType = "ECHO_JOBER"
	JoberHTTP        JoberType = "HTTP_JOBER"
	JoberGenericable JoberType = "GENERICABLE_JOBER"
	JoberStore       JoberType = "STORE_JOBER"
	JoberScript      JoberType = "SCRIPT_JOBER"
)

// Jober represents automatic node work. Exactly one of the variant fields is set, matching Type.
type Jober struct {
	Type        JoberType              `json:"type" yaml:"type"`
	Name        string                 `json:"name,omitempty" yaml:"name,omitempty"`
	NodeID      string                 `json:"nodeId,omitempty" yaml:"nodeId,omitempty"`
	TriggerMode TriggerMode            `json:"triggerMode,omitempty" yaml:"triggerMode,omitempty"`
	Fitables    []string               `json:"fitables,omitempty" yaml:"fitables,omitempty"`
	Converter   *Converter             `json:"converter,omitempty" yaml:"converter,omitempty"`
	Retry       *Retry                 `json:"retry,omitempty" yaml:"retry,omitempty"`
	Exceptions  []string               `json:"exceptionFitables,omitempty" yaml:"exceptionFitables,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`

	HTTP    *HTTPSpec    `json:"http,omitempty" yaml:"http,omitempty"`
	Generic *GenericSpec `json:"generic,omitempty" yaml:"generic,omitempty"`
	Store   *StoreSpec   `json:"store,omitempty" yaml:"store,omitempty"`
	Script  *ScriptSpec  `json:"script,omitempty" yaml:"script,omitempty"`
}

// HTTPSpec represents outbound call endpoint configuration
type HTTPSpec struct {
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Timeout string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GenericSpec represents a remote service call with ordered parameter names
type GenericSpec struct {
	GenericableID string   `json:"genericableId" yaml:"genericableId"`
	Params        []string `json:"params,omitempty" yaml:"params,omitempty"`
}

// StoreSpec represents a catalog entry call
type StoreSpec struct {
	UniqueName string   `json:"uniqueName" yaml:"uniqueName"`
	Params     []string `json:"params,omitempty" yaml:"params,omitempty"`
}

// ScriptSpec represents an embedded script
type ScriptSpec struct {
	Language string `json:"language" yaml:"language"`
	Source   string `json:"source" yaml:"source"`
}

// Retry overrides the driver retry policy for one jober
type Retry struct {
	MaxRetries int     `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	Delay      string  `json:"delay,omitempty" yaml:"delay,omitempty"`
	MaxDelay   string  `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}
