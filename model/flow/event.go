package flow

// TaskCreated requests automatic work for a batch of rows at one node.
type TaskCreated struct {
	StreamID   string   `json:"streamId"`
	NodeID     string   `json:"nodeId"`
	ContextIDs []string `json:"contextIds"`
}

// CallbackItem carries resolved attributes for one row
type CallbackItem struct {
	ContextID string `json:"contextId"`
	StreamID  string `json:"streamId"`
	Position  string `json:"position"`
	Data      Values `json:"data,omitempty"`
}

// Callback resumes rows waiting on a manual task. All items share one stream and position.
type Callback struct {
	StreamID string         `json:"streamId"`
	Position string         `json:"position"`
	TaskID   string         `json:"taskId,omitempty"`
	Error    string         `json:"error,omitempty"`
	Items    []CallbackItem `json:"items"`
}

// ContextIDs returns ids of callback items
func (c *Callback) ContextIDs() []string {
	ret := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ret = append(ret, item.ContextID)
	}
	return ret
}
