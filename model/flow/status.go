package flow

import (
	"errors"
	"fmt"
)

// Status represents a context row state
type Status string

const (
	StatusNew        Status = "NEW"
	StatusPending    Status = "PENDING"
	StatusReady      Status = "READY"
	StatusProcessing Status = "PROCESSING"
	StatusArchived   Status = "ARCHIVED"
	StatusError      Status = "ERROR"
	StatusTerminate  Status = "TERMINATE"
	StatusRetryable  Status = "RETRYABLE"
)

// ErrInvalidTransition is returned when a status change violates the row state machine.
var ErrInvalidTransition = errors.New("flow: invalid status transition")

var rank = map[Status]int{
	StatusNew:        0,
	StatusPending:    1,
	StatusReady:      2,
	StatusProcessing: 3,
	StatusArchived:   4,
	StatusError:      4,
	StatusTerminate:  4,
	StatusRetryable:  4,
}

// Terminal returns true for statuses a row never leaves
func (s Status) Terminal() bool {
	switch s {
	case StatusArchived, StatusError, StatusTerminate:
		return true
	}
	return false
}

// Valid returns true for known statuses
func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// CanTransit reports whether from may move to to.
// Rows move forward through NEW, PENDING, READY, PROCESSING and one outcome, possibly skipping steps.
// RETRYABLE may be re-driven to READY; TERMINATE applies to any non-terminal row.
func CanTransit(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StatusTerminate {
		return true
	}
	if from == StatusRetryable {
		return to == StatusReady
	}
	return rank[to] > rank[from]
}

// Transit validates the change and returns a wrapped ErrInvalidTransition on violation.
func Transit(from, to Status) error {
	if CanTransit(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
