package builtin

import (
	"context"
	"reflect"

	"github.com/viant/fluxflow/model/types"
)

// NopService accepts any fitable call and does nothing; callbacks without a handler point here
const NopService = "nop"

type Nop struct{}

// NewNop creates a no-op service
func NewNop() *Nop {
	return &Nop{}
}

func (s *Nop) Name() string {
	return NopService
}

func (s *Nop) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:        "nop",
			Description: "Performs no operation and returns immediately.",
			Input:       reflect.TypeOf(map[string]interface{}{}),
			Output:      reflect.TypeOf(map[string]interface{}{}),
		},
	}
}

// Method returns the no-op for any name
func (s *Nop) Method(string) (types.Executable, error) {
	return s.nop, nil
}

func (s *Nop) nop(context.Context, interface{}, interface{}) error {
	return nil
}
