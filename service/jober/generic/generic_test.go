package generic

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/model/types"
	"github.com/viant/fluxflow/service/invoker"
)

type priceInput struct {
	Amount   float64
	Discount float64
}

type priceOutput struct {
	Total float64 `json:"total"`
}

type pricing struct{}

func (p *pricing) Name() string { return "pricing" }

func (p *pricing) Methods() types.Signatures {
	return types.Signatures{
		{Name: "net", Input: reflect.TypeOf(&priceInput{}), Output: reflect.TypeOf(&priceOutput{})},
	}
}

func (p *pricing) Method(name string) (types.Executable, error) {
	if name != "net" {
		return nil, types.NewMethodNotFoundError(name)
	}
	return func(ctx context.Context, input, output interface{}) error {
		in := input.(*priceInput)
		output.(*priceOutput).Total = in.Amount - in.Discount
		return nil
	}, nil
}

func newInvoker() *invoker.Registry {
	scoring := invoker.NewFuncs("scoring").
		Put("risk", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"risk": params["amount"]}, nil
		}).
		Put("tier", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"tier": "gold"}, nil
		}).
		Put("fail", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
			return nil, errors.New("scoring down")
		})
	return invoker.New(scoring, &pricing{})
}

func TestOperator_Operate(t *testing.T) {
	type testCase struct {
		name      string
		jober     *definition.Jober
		expected  flow.Values
		expectErr bool
	}
	tests := []testCase{
		{
			name:     "whole business data when no params",
			jober:    &definition.Jober{Type: definition.JoberGenericable, Generic: &definition.GenericSpec{GenericableID: "scoring"}, Fitables: []string{"risk"}},
			expected: flow.Values{"risk": 10},
		},
		{
			name:     "outputs merged in fitable order",
			jober:    &definition.Jober{Type: definition.JoberGenericable, Generic: &definition.GenericSpec{GenericableID: "scoring"}, Fitables: []string{"risk", "tier"}},
			expected: flow.Values{"risk": 10, "tier": "gold"},
		},
		{
			name:     "ordered params bound positionally",
			jober:    &definition.Jober{Type: definition.JoberGenericable, Generic: &definition.GenericSpec{GenericableID: "pricing", Params: []string{"amount", "discount"}}},
			expected: flow.Values{"total": 7.0},
		},
		{
			name:      "fitable failure",
			jober:     &definition.Jober{Type: definition.JoberGenericable, Generic: &definition.GenericSpec{GenericableID: "scoring"}, Fitables: []string{"fail"}},
			expectErr: true,
		},
		{
			name:      "missing genericable",
			jober:     &definition.Jober{Type: definition.JoberGenericable, Generic: &definition.GenericSpec{}},
			expectErr: true,
		},
		{
			name:      "unknown service",
			jober:     &definition.Jober{Type: definition.JoberGenericable, Generic: &definition.GenericSpec{GenericableID: "billing"}},
			expectErr: true,
		},
	}
	operator := New(newInvoker())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			batch := []*flow.Context{{ID: "c1", Data: flow.NewData(map[string]interface{}{"amount": 10, "discount": 3})}}
			err := operator.Operate(context.Background(), batch, tc.jober)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, tc.expected, batch[0].Data.BusinessData)
		})
	}
}

func TestArgs(t *testing.T) {
	data := flow.Values{"a": 1, "b": map[string]interface{}{"c": "x"}}
	assert.Equal(t, []interface{}{"x", 1, nil}, Args(data, []string{"b.c", "a", "missing"}))
	whole := Args(data, nil)
	require.Len(t, whole, 1)
	assert.Equal(t, map[string]interface{}(data), whole[0])
}

func TestMerge(t *testing.T) {
	output := flow.Values{}
	Merge(output, "risk", map[string]interface{}{"score": 1})
	Merge(output, "count", 3)
	Merge(output, "none", nil)
	assert.Equal(t, flow.Values{"score": 1, "count": 3}, output)
}
