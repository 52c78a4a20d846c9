// Package task manages the manual tasks that hold rows at MANUAL nodes until they are resolved.
package task

import (
	"errors"
	"time"

	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

var (
	// ErrNotFound is returned for unknown task ids
	ErrNotFound = errors.New("task: not found")
	// ErrClosed is returned when resolving, failing or cancelling a task that is no longer pending
	ErrClosed = errors.New("task: closed")
	// ErrInvalidResult is returned when a resolution does not fit the task type
	ErrInvalidResult = errors.New("task: invalid result")
)

// ApprovedKey is the result attribute every APPROVAL_TASK line item must carry
const ApprovedKey = "approved"

// Status represents a task lifecycle status
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// LineItem represents one row held by a task
type LineItem struct {
	ContextID string      `json:"contextId"`
	TraceID   string      `json:"traceId"`
	Data      flow.Values `json:"data,omitempty"`
	Result    flow.Values `json:"result,omitempty"`
}

// Task represents a manual work item created for one admitted group of rows
type Task struct {
	ID                string              `json:"id"`
	StreamID          string              `json:"streamId"`
	NodeID            string              `json:"nodeId"`
	Type              definition.TaskType `json:"type"`
	Source            string              `json:"source,omitempty"`
	Owner             string              `json:"owner,omitempty"`
	ExceptionFitables []string            `json:"exceptionFitables,omitempty"`
	Status            Status              `json:"status"`
	Items             []*LineItem         `json:"items"`
	Reason            string              `json:"reason,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	ClosedAt          *time.Time          `json:"closedAt,omitempty"`
}

// TraceIDs returns distinct trace ids of the task rows in item order
func (t *Task) TraceIDs() []string {
	var result []string
	seen := map[string]bool{}
	for _, item := range t.Items {
		if seen[item.TraceID] {
			continue
		}
		seen[item.TraceID] = true
		result = append(result, item.TraceID)
	}
	return result
}

// ContextIDs returns row ids held by the task
func (t *Task) ContextIDs() []string {
	result := make([]string, 0, len(t.Items))
	for _, item := range t.Items {
		result = append(result, item.ContextID)
	}
	return result
}

// Has returns true when the task holds the row
func (t *Task) Has(contextID string) bool {
	for _, item := range t.Items {
		if item.ContextID == contextID {
			return true
		}
	}
	return false
}

// Pending returns true while the task accepts a resolution
func (t *Task) Pending() bool {
	return t.Status == StatusPending
}

// Clone returns a deep copy
func (t *Task) Clone() *Task {
	ret := *t
	ret.ExceptionFitables = append([]string(nil), t.ExceptionFitables...)
	ret.Items = make([]*LineItem, 0, len(t.Items))
	for _, item := range t.Items {
		c := *item
		c.Data = item.Data.Clone()
		c.Result = item.Result.Clone()
		ret.Items = append(ret.Items, &c)
	}
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		ret.ClosedAt = &at
	}
	return &ret
}

// Attributes returns list-filterable attributes
func (t *Task) Attributes() map[string]string {
	return map[string]string{
		"id":       t.ID,
		"streamId": t.StreamID,
		"nodeId":   t.NodeID,
		"type":     string(t.Type),
		"source":   t.Source,
		"owner":    t.Owner,
		"status":   string(t.Status),
	}
}

// Callback builds the callback event that resumes the task rows
func (t *Task) Callback() *flow.Callback {
	ret := &flow.Callback{StreamID: t.StreamID, Position: t.NodeID, TaskID: t.ID}
	if t.Status == StatusFailed {
		ret.Error = t.Reason
	}
	for _, item := range t.Items {
		ret.Items = append(ret.Items, flow.CallbackItem{
			ContextID: item.ContextID,
			StreamID:  t.StreamID,
			Position:  t.NodeID,
			Data:      item.Result.Clone(),
		})
	}
	return ret
}
