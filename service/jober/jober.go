// Package jober dispatches automatic node work to operators registered by jober type.
package jober

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

var (
	// ErrTransient marks an operator failure worth retrying
	ErrTransient = errors.New("jober: transient failure")
	// ErrUnsupportedJober is returned when no operator is registered for a jober type
	ErrUnsupportedJober = errors.New("jober: unsupported jober type")
	// ErrPolicyDenied is returned when policy blocks a jober type or fitable
	ErrPolicyDenied = errors.New("jober: denied by policy")
)

// Operator executes a jober for a batch and writes each row's output into its businessData.
type Operator interface {
	Operate(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error
}

// Operate is the function form of Operator used by middleware
type Operate func(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error

// Operate implements Operator
func (o Operate) Operate(ctx context.Context, batch []*flow.Context, jober *definition.Jober) error {
	return o(ctx, batch, jober)
}

// DispatchError represents a failed jober dispatch
type DispatchError struct {
	NodeID    string
	JoberType definition.JoberType
	Retryable bool
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("node %v: %v failed: %v", e.NodeID, e.JoberType, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// StatusError represents a non-success response of a remote endpoint
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

// Retryable classifies err: ErrTransient, timeouts, HTTP 429 and 5xx are retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= http.StatusInternalServerError
	}
	return false
}

// Result represents dispatch outcome. Contexts are working copies holding operator output.
type Result struct {
	Contexts []*flow.Context
	Err      *DispatchError
}

// OK reports success
func (r *Result) OK() bool {
	return r != nil && r.Err == nil
}

// Outputs returns businessData by context id
func (r *Result) Outputs() map[string]flow.Values {
	ret := make(map[string]flow.Values, len(r.Contexts))
	for _, row := range r.Contexts {
		ret[row.ID] = row.Data.BusinessData
	}
	return ret
}
