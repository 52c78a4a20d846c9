package echo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

func TestOperator_Operate(t *testing.T) {
	batch := []*flow.Context{
		{ID: "c1", Data: flow.NewData(map[string]interface{}{"a": 1})},
		{ID: "c2"},
	}
	require.NoError(t, New().Operate(context.Background(), batch, &definition.Jober{Type: definition.JoberEcho}))
	assert.Equal(t, flow.Values{"a": 1}, batch[0].Data.BusinessData)
	assert.Equal(t, flow.Values{}, batch[1].Data.BusinessData)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, New().Operate(ctx, batch, &definition.Jober{Type: definition.JoberEcho}))
}
