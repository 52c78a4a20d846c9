// Package definition defines the compiled, immutable model of a flow graph.
package definition

import (
	"reflect"
	"strings"
)

// Status represents definition lifecycle status
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Definition represents a compiled flow. It is read-only once published and
// may be shared by any number of running instances.
type Definition struct {
	ID                string      `json:"id" yaml:"id"`
	MetaID            string      `json:"metaId" yaml:"metaId"`
	Version           string      `json:"version" yaml:"version"`
	Name              string      `json:"name,omitempty" yaml:"name,omitempty"`
	Status            Status      `json:"status" yaml:"status"`
	Nodes             []*Node     `json:"nodes" yaml:"nodes"`
	Events            []*Event    `json:"events,omitempty" yaml:"events,omitempty"`
	ExceptionFitables []string    `json:"exceptionFitables,omitempty" yaml:"exceptionFitables,omitempty"`
	Types             []*TypeNode `json:"types,omitempty" yaml:"types,omitempty"`
	// Source is the graph document the definition was compiled from
	Source []byte `json:"-" yaml:"-"`
}

// StreamID returns the identifier shared by every context row bound to this definition.
func (d *Definition) StreamID() string {
	return StreamID(d.MetaID, d.Version)
}

// StreamID composes a stream id from meta id and version.
func StreamID(metaID, version string) string {
	return metaID + "-" + version
}

// SplitStreamID reverses StreamID; the version is the text after the last dash.
func SplitStreamID(streamID string) (metaID, version string, ok bool) {
	idx := strings.LastIndex(streamID, "-")
	if idx <= 0 || idx == len(streamID)-1 {
		return "", "", false
	}
	return streamID[:idx], streamID[idx+1:], true
}

// Active returns true when definition accepts new instances
func (d *Definition) Active() bool {
	return d.Status == "" || d.Status == StatusActive
}

// Node returns a node by meta id
func (d *Definition) Node(metaID string) *Node {
	for _, node := range d.Nodes {
		if node.MetaID == metaID {
			return node
		}
	}
	return nil
}

// StartNode returns the first START node
func (d *Definition) StartNode() *Node {
	for _, node := range d.Nodes {
		if node.Type == NodeTypeStart {
			return node
		}
	}
	return nil
}

// Outgoing returns edges leaving the node, in declaration order.
func (d *Definition) Outgoing(nodeID string) []*Event {
	var result []*Event
	for _, event := range d.Events {
		if event.From == nodeID {
			result = append(result, event)
		}
	}
	return result
}

// Incoming returns edges entering the node, in declaration order.
func (d *Definition) Incoming(nodeID string) []*Event {
	var result []*Event
	for _, event := range d.Events {
		if event.To == nodeID {
			result = append(result, event)
		}
	}
	return result
}

// ExceptionTargets returns node level exception fitables, falling back to the definition defaults.
func (d *Definition) ExceptionTargets(node *Node) []string {
	if node != nil && len(node.ExceptionFitables) > 0 {
		return node.ExceptionFitables
	}
	return d.ExceptionFitables
}

// Equal reports structural equality
func (d *Definition) Equal(other *Definition) bool {
	if d == nil || other == nil {
		return d == other
	}
	return reflect.DeepEqual(d, other)
}
