package filter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

func rows(batches ...string) []*flow.Context {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ret []*flow.Context
	for i, batch := range batches {
		ret = append(ret, &flow.Context{ID: fmt.Sprintf("c%d", i), BatchID: batch, CreatedAt: start.Add(time.Duration(i) * time.Second)})
	}
	return ret
}

func groupIDs(result Result) [][]string {
	var ret [][]string
	for _, group := range result.Groups {
		ret = append(ret, flow.IDs(group))
	}
	return ret
}

func TestFilters(t *testing.T) {
	type testCase struct {
		name     string
		spec     *definition.Filter
		batch    []*flow.Context
		proceed  bool
		expected [][]string
	}
	tests := []testCase{
		{
			name:  "minimum size below threshold",
			spec:  &definition.Filter{Type: definition.FilterMinimumSize, Threshold: 3},
			batch: rows("b1", "b1"),
		},
		{
			name:     "minimum size reached",
			spec:     &definition.Filter{Type: definition.FilterMinimumSize, Threshold: 2},
			batch:    rows("b1", "b2", "b1"),
			proceed:  true,
			expected: [][]string{{"c0", "c1", "c2"}},
		},
		{
			name:     "same batch groups by upstream batch",
			spec:     &definition.Filter{Type: definition.FilterSameBatch},
			batch:    rows("b1", "b2", "b1"),
			proceed:  true,
			expected: [][]string{{"c0", "c2"}, {"c1"}},
		},
		{
			name:     "same batch with threshold keeps small groups pending",
			spec:     &definition.Filter{Type: definition.FilterSameBatch, Threshold: 2},
			batch:    rows("b1", "b2", "b1"),
			proceed:  true,
			expected: [][]string{{"c0", "c2"}},
		},
		{
			name:     "chunk size leaves remainder pending",
			spec:     &definition.Filter{Type: definition.FilterChunkSize, Threshold: 2},
			batch:    rows("b1", "b1", "b1", "b1", "b1"),
			proceed:  true,
			expected: [][]string{{"c0", "c1"}, {"c2", "c3"}},
		},
		{
			name:  "chunk size not reached",
			spec:  &definition.Filter{Type: definition.FilterChunkSize, Threshold: 2},
			batch: rows("b1"),
		},
	}
	registry := NewRegistry()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			filter, err := registry.Lookup(tc.spec)
			require.NoError(t, err)
			result := filter.Evaluate(tc.batch, &definition.Node{MetaID: "n"})
			assert.Equal(t, tc.proceed, result.Proceed)
			assert.Equal(t, tc.expected, groupIDs(result))
		})
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Lookup(&definition.Filter{Type: "BAR_FILTER"})
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = registry.Lookup(nil)
	assert.True(t, errors.Is(err, ErrUnsupported))
}
