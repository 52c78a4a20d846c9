package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/fluxflow/service/dao"
)

func TestMatch(t *testing.T) {
	type testCase struct {
		name       string
		parameters []*dao.Parameter
		expect     bool
	}
	attributes := map[string]string{"streamId": "order-1.0", "status": "pending"}
	tests := []testCase{
		{name: "no parameters", expect: true},
		{name: "single value", parameters: []*dao.Parameter{dao.NewParameter("status", "pending")}, expect: true},
		{name: "case insensitive name", parameters: []*dao.Parameter{dao.NewParameter("StreamID", "order-1.0")}, expect: true},
		{name: "any of values", parameters: []*dao.Parameter{dao.NewParameter("status", "resolved", "pending")}, expect: true},
		{name: "mismatch", parameters: []*dao.Parameter{dao.NewParameter("status", "resolved")}},
		{name: "unknown name", parameters: []*dao.Parameter{dao.NewParameter("owner", "ops")}},
		{name: "all must match", parameters: []*dao.Parameter{dao.NewParameter("status", "pending"), dao.NewParameter("streamId", "other-1.0")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, Match(attributes, tc.parameters))
		})
	}
}
