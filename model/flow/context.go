// Package flow defines in-flight instance data: context rows, their payload and engine events.
package flow

import (
	"time"
)

// Data represents a row payload
type Data struct {
	// BusinessData is visible to node logic
	BusinessData Values `json:"businessData"`
	// ContextData holds engine metadata
	ContextData Values `json:"contextData"`
	// PassData is forwarded without transformation
	PassData Values `json:"passData"`
}

// NewData creates data with the supplied business values
func NewData(business map[string]interface{}) Data {
	ret := Data{BusinessData: Values{}, ContextData: Values{}, PassData: Values{}}
	for k, v := range business {
		ret.BusinessData[k] = v
	}
	return ret
}

// Clone returns a deep copy
func (d Data) Clone() Data {
	return Data{
		BusinessData: d.BusinessData.Clone(),
		ContextData:  d.ContextData.Clone(),
		PassData:     d.PassData.Clone(),
	}
}

// View returns a serializable snapshot used for exception notifications.
func (d Data) View() map[string]interface{} {
	return map[string]interface{}{
		"businessData": map[string]interface{}(d.BusinessData.Clone()),
		"contextData":  map[string]interface{}(d.ContextData.Clone()),
		"passData":     map[string]interface{}(d.PassData.Clone()),
	}
}

// Context represents one in-flight data row positioned at a node
type Context struct {
	ID            string     `json:"id"`
	StreamID      string     `json:"streamId"`
	TraceID       string     `json:"traceId"`
	Position      string     `json:"position"`
	From          string     `json:"from,omitempty"`
	BatchID       string     `json:"batchId,omitempty"`
	DispatchID    string     `json:"dispatchId,omitempty"`
	Status        Status     `json:"status"`
	Data          Data       `json:"data"`
	TaskID        string     `json:"taskId,omitempty"`
	RetryCount    int        `json:"retryCount,omitempty"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	ret := *c
	ret.Data = c.Data.Clone()
	if c.NextAttemptAt != nil {
		at := *c.NextAttemptAt
		ret.NextAttemptAt = &at
	}
	return &ret
}

// IDs returns context ids
func IDs(contexts []*Context) []string {
	ret := make([]string, 0, len(contexts))
	for _, c := range contexts {
		ret = append(ret, c.ID)
	}
	return ret
}

// CloneAll deep copies contexts
func CloneAll(contexts []*Context) []*Context {
	ret := make([]*Context, 0, len(contexts))
	for _, c := range contexts {
		ret = append(ret, c.Clone())
	}
	return ret
}

// Views returns the serialized batch view used by exception routing.
func Views(contexts []*Context) []map[string]interface{} {
	ret := make([]map[string]interface{}, 0, len(contexts))
	for _, c := range contexts {
		view := c.Data.View()
		view["id"] = c.ID
		ret = append(ret, view)
	}
	return ret
}
