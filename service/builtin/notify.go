// Package builtin provides invocation targets registered with every engine.
package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/viant/fluxflow/internal/logger"
	"github.com/viant/fluxflow/model/types"
	"go.uber.org/zap"
)

// NotifyService is the default exception handler service id
const NotifyService = "notify"

// Notification represents the exception payload received by handlers
type Notification struct {
	StreamID string                   `json:"streamId"`
	NodeID   string                   `json:"nodeId"`
	Error    string                   `json:"error"`
	Contexts []map[string]interface{} `json:"contexts"`
}

// Ack represents handler output
type Ack struct {
	Rows int `json:"rows"`
}

// Notify logs or prints exception notifications
type Notify struct {
	writer io.Writer
}

// NewNotify creates a notify service; print writes to w, or stdout when w is nil
func NewNotify(w io.Writer) *Notify {
	if w == nil {
		w = os.Stdout
	}
	return &Notify{writer: w}
}

func (s *Notify) Name() string {
	return NotifyService
}

func (s *Notify) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:        "log",
			Description: "Logs a failed batch at error level.",
			Input:       reflect.TypeOf(&Notification{}),
			Output:      reflect.TypeOf(&Ack{}),
		},
		{
			Name:        "print",
			Description: "Prints a failed batch summary.",
			Input:       reflect.TypeOf(&Notification{}),
			Output:      reflect.TypeOf(&Ack{}),
		},
	}
}

func (s *Notify) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "log":
		return s.log, nil
	case "print":
		return s.print, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *Notify) log(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Notification)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	logger.Error("batch failed",
		zap.String("stream", input.StreamID),
		zap.String("node", input.NodeID),
		zap.Int("rows", len(input.Contexts)),
		zap.String("error", input.Error))
	return s.ack(input, out)
}

func (s *Notify) print(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Notification)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	if _, err := fmt.Fprintf(s.writer, "%v/%v: %d row(s) failed: %v\n", input.StreamID, input.NodeID, len(input.Contexts), input.Error); err != nil {
		return err
	}
	return s.ack(input, out)
}

func (s *Notify) ack(input *Notification, out interface{}) error {
	output, ok := out.(*Ack)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	output.Rows = len(input.Contexts)
	return nil
}
