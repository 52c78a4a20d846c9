package definition

// TaskType represents a manual task kind
type TaskType string

const (
	TaskManual   TaskType = "MANUAL_TASK"
	TaskApproval TaskType = "APPROVAL_TASK"
)

// Task represents manual node work
type Task struct {
	Type              TaskType               `json:"type" yaml:"type"`
	Source            string                 `json:"source,omitempty" yaml:"source,omitempty"`
	Owner             string                 `json:"owner,omitempty" yaml:"owner,omitempty"`
	NodeID            string                 `json:"nodeId,omitempty" yaml:"nodeId,omitempty"`
	Name              string                 `json:"name,omitempty" yaml:"name,omitempty"`
	TriggerMode       TriggerMode            `json:"triggerMode,omitempty" yaml:"triggerMode,omitempty"`
	Converter         *Converter             `json:"converter,omitempty" yaml:"converter,omitempty"`
	ExceptionFitables []string               `json:"exceptionFitables,omitempty" yaml:"exceptionFitables,omitempty"`
	Properties        map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// FilterType represents a batch gating kind
type FilterType string

const (
	FilterMinimumSize FilterType = "MINIMUM_SIZE_FILTER"
	FilterSameBatch   FilterType = "SAME_BATCH_FILTER"
	FilterChunkSize   FilterType = "CHUNK_SIZE_FILTER"
)

// Filter represents batch admission configuration
type Filter struct {
	Type      FilterType `json:"type" yaml:"type"`
	Threshold int        `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// CallbackType represents a callback kind
type CallbackType string

const (
	CallbackGeneral CallbackType = "GENERAL_CALLBACK"
	CallbackFitable CallbackType = "FITABLE_CALLBACK"
)

// Callback is executed once a manual task resolved its rows
type Callback struct {
	Type     CallbackType `json:"type" yaml:"type"`
	Fitables []string     `json:"fitables,omitempty" yaml:"fitables,omitempty"`
}

// ConverterType represents a data reshaping kind
type ConverterType string

const (
	ConverterMapping ConverterType = "MAPPING_CONVERTER"
)

// MappingSource tells where a mapped value comes from
type MappingSource string

const (
	FromInput     MappingSource = "INPUT"
	FromReference MappingSource = "REFERENCE"
	FromExpand    MappingSource = "EXPAND"
)

// Converter represents data reshaping configuration
type Converter struct {
	Type     ConverterType `json:"type" yaml:"type"`
	Mappings []*Mapping    `json:"mappings,omitempty" yaml:"mappings,omitempty"`
}

// Mapping represents one output key of a mapping converter
type Mapping struct {
	Name     string        `json:"name" yaml:"name"`
	From     MappingSource `json:"from" yaml:"from"`
	Value    interface{}   `json:"value,omitempty" yaml:"value,omitempty"`
	Children []*Mapping    `json:"children,omitempty" yaml:"children,omitempty"`
}
