package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrInactive is returned when starting an instance of an inactive definition
	ErrInactive = errors.New("driver: definition is not active")
)

// StateError reports an event that references rows inconsistent with the targeted node.
// It is fatal for the event: nothing of the batch is processed.
type StateError struct {
	StreamID string
	NodeID   string
	Reason   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("inconsistent state at %v/%v: %v", e.StreamID, e.NodeID, e.Reason)
}

func stateError(streamID, nodeID, format string, args ...interface{}) error {
	return &StateError{StreamID: streamID, NodeID: nodeID, Reason: fmt.Sprintf(format, args...)}
}

// IsStateError returns true when err wraps a StateError
func IsStateError(err error) bool {
	var stateErr *StateError
	return errors.As(err, &stateErr)
}
