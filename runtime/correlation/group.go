// Package correlation tracks rows converging on JOIN nodes.
package correlation

import (
	"time"
)

// Mode represents a join completion mode
type Mode string

const (
	// ModeAll waits for one row from every incoming branch
	ModeAll Mode = "ALL"
	// ModeEither forwards the first arrival and discards the rest
	ModeEither Mode = "EITHER"
)

// Group represents the rendez-vous of one trace at one join node.
type Group struct {
	ID      string `json:"id"`
	TraceID string `json:"traceId"`
	NodeID  string `json:"nodeId"`
	Mode    Mode   `json:"mode"`
	// Sources lists incoming branch nodes in edge order
	Sources []string `json:"sources"`
	// Arrived holds context ids per source waiting to be merged
	Arrived map[string][]string `json:"arrived,omitempty"`
	Fired   int                 `json:"fired"`
	DoneAt  *time.Time          `json:"doneAt,omitempty"`
}

// Outcome tells the caller what to do with an arrival
type Outcome struct {
	// Members are the context ids to release, one per source in edge order for ALL
	Members []string
	// Discard is set when the arrival must be archived without successors
	Discard bool
}

// Ready returns true when members should proceed
func (o Outcome) Ready() bool {
	return len(o.Members) > 0
}

// GroupID returns the group id of a trace at a join node
func GroupID(traceID, nodeID string) string {
	return traceID + "/" + nodeID
}

// NewGroup creates an empty group
func NewGroup(traceID, nodeID string, mode Mode, sources []string) *Group {
	if mode == "" {
		mode = ModeAll
	}
	return &Group{
		ID:      GroupID(traceID, nodeID),
		TraceID: traceID,
		NodeID:  nodeID,
		Mode:    mode,
		Sources: append([]string(nil), sources...),
		Arrived: map[string][]string{},
	}
}

// Arrive registers a context id coming from source. Unknown sources are treated as their own branch.
func (g *Group) Arrive(source, contextID string, now time.Time) Outcome {
	if g.Mode == ModeEither {
		if g.Fired > 0 {
			return Outcome{Discard: true}
		}
		g.fire(now)
		return Outcome{Members: []string{contextID}}
	}
	if !g.known(source) {
		g.Sources = append(g.Sources, source)
	}
	g.Arrived[source] = append(g.Arrived[source], contextID)
	for _, candidate := range g.Sources {
		if len(g.Arrived[candidate]) == 0 {
			return Outcome{}
		}
	}
	members := make([]string, 0, len(g.Sources))
	for _, candidate := range g.Sources {
		queue := g.Arrived[candidate]
		members = append(members, queue[0])
		if len(queue) == 1 {
			delete(g.Arrived, candidate)
		} else {
			g.Arrived[candidate] = queue[1:]
		}
	}
	g.fire(now)
	return Outcome{Members: members}
}

// Waiting returns the number of arrivals not yet released
func (g *Group) Waiting() int {
	count := 0
	for _, ids := range g.Arrived {
		count += len(ids)
	}
	return count
}

// Done returns whether the group has fired at least once.
func (g *Group) Done() bool {
	return g.DoneAt != nil
}

// Clone returns a deep copy
func (g *Group) Clone() *Group {
	ret := *g
	ret.Sources = append([]string(nil), g.Sources...)
	ret.Arrived = make(map[string][]string, len(g.Arrived))
	for k, v := range g.Arrived {
		ret.Arrived[k] = append([]string(nil), v...)
	}
	if g.DoneAt != nil {
		at := *g.DoneAt
		ret.DoneAt = &at
	}
	return &ret
}

func (g *Group) fire(now time.Time) {
	g.Fired++
	if g.DoneAt == nil {
		g.DoneAt = &now
	}
}

func (g *Group) known(source string) bool {
	for _, candidate := range g.Sources {
		if candidate == source {
			return true
		}
	}
	return false
}
