package definition

// NodeType represents a node kind
type NodeType string

const (
	NodeTypeStart     NodeType = "START"
	NodeTypeState     NodeType = "STATE"
	NodeTypeCondition NodeType = "CONDITION"
	NodeTypeParallel  NodeType = "PARALLEL"
	NodeTypeJoin      NodeType = "JOIN"
	NodeTypeEnd       NodeType = "END"
)

// TriggerMode controls whether a node progresses on its own or waits for a manual task.
type TriggerMode string

const (
	TriggerAuto   TriggerMode = "AUTO"
	TriggerManual TriggerMode = "MANUAL"
)

// JoinMode controls how a JOIN node merges incoming branches
type JoinMode string

const (
	JoinAll    JoinMode = "ALL"
	JoinEither JoinMode = "EITHER"
)

// Node represents a flow node
type Node struct {
	MetaID            string                 `json:"metaId" yaml:"metaId"`
	Name              string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Type              NodeType               `json:"type" yaml:"type"`
	TriggerMode       TriggerMode            `json:"triggerMode" yaml:"triggerMode"`
	Properties        map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
	Jober             *Jober                 `json:"jober,omitempty" yaml:"jober,omitempty"`
	JoberFilter       *Filter                `json:"joberFilter,omitempty" yaml:"joberFilter,omitempty"`
	Task              *Task                  `json:"task,omitempty" yaml:"task,omitempty"`
	TaskFilter        *Filter                `json:"taskFilter,omitempty" yaml:"taskFilter,omitempty"`
	Callback          *Callback              `json:"callback,omitempty" yaml:"callback,omitempty"`
	ExceptionFitables []string               `json:"exceptionFitables,omitempty" yaml:"exceptionFitables,omitempty"`
}

// Manual returns true for nodes waiting on external resolution
func (n *Node) Manual() bool {
	return n.TriggerMode == TriggerManual
}

// ActiveFilter returns the filter gating admission for the node trigger mode.
func (n *Node) ActiveFilter() *Filter {
	if n.Manual() {
		return n.TaskFilter
	}
	return n.JoberFilter
}

// JoinMode returns the configured merge mode of a JOIN node
func (n *Node) JoinMode() JoinMode {
	if n.Properties != nil {
		if v, ok := n.Properties["mode"].(string); ok && v != "" {
			return JoinMode(v)
		}
	}
	return JoinAll
}

// Exclusive returns true when only the first matching edge is followed.
func (n *Node) Exclusive() bool {
	return n.Type == NodeTypeCondition
}

// Event represents a directed edge between two nodes
type Event struct {
	MetaID        string `json:"metaId" yaml:"metaId"`
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`
	From          string `json:"from" yaml:"from"`
	To            string `json:"to" yaml:"to"`
	ConditionRule string `json:"conditionRule,omitempty" yaml:"conditionRule,omitempty"`
}
