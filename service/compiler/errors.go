package compiler

import (
	"fmt"

	"go.uber.org/multierr"
)

// Role names the document element a type string was resolved for
type Role string

const (
	RoleNode      Role = "node"
	RoleJober     Role = "jober"
	RoleTask      Role = "task"
	RoleFilter    Role = "filter"
	RoleCallback  Role = "callback"
	RoleConverter Role = "converter"
)

// UnsupportedTypeError reports a type string with no registered parser
type UnsupportedTypeError struct {
	Role   Role
	Type   string
	NodeID string
}

func (e *UnsupportedTypeError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("unsupported %s type %q at node %q", e.Role, e.Type, e.NodeID)
	}
	return fmt.Sprintf("unsupported %s type %q", e.Role, e.Type)
}

// CompileError aggregates every problem found in a graph document.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string {
	return "compile error: " + e.Err.Error()
}

func (e *CompileError) Unwrap() error { return e.Err }

// Errors returns individual causes
func (e *CompileError) Errors() []error {
	return multierr.Errors(e.Err)
}

func newCompileError(err error) error {
	if err == nil {
		return nil
	}
	return &CompileError{Err: err}
}
