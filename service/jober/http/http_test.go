package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/jober"
)

func TestOperator_Operate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/o-1":
			body, _ := io.ReadAll(r.Body)
			var in map[string]interface{}
			_ = json.Unmarshal(body, &in)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"method": r.Method, "echo": in["id"], "tenant": r.Header.Get("X-Tenant")})
		case "/list":
			_, _ = w.Write([]byte(`[1,2]`))
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	type testCase struct {
		name      string
		spec      *definition.HTTPSpec
		fitables  []string
		expected  flow.Values
		retryable bool
		expectErr bool
	}
	tests := []testCase{
		{
			name:     "url tokens and json body",
			spec:     &definition.HTTPSpec{URL: server.URL + "/orders/{$.id}", Headers: map[string]string{"X-Tenant": "t1"}},
			expected: flow.Values{"method": "POST", "echo": "o-1", "tenant": "t1"},
		},
		{
			name:     "non object response",
			spec:     &definition.HTTPSpec{Method: "get", URL: server.URL + "/list"},
			expected: flow.Values{"result": []interface{}{1.0, 2.0}},
		},
		{
			name:     "fitables as urls",
			fitables: []string{server.URL + "/list"},
			expected: flow.Values{"result": []interface{}{1.0, 2.0}},
		},
		{
			name:      "server error is retryable",
			spec:      &definition.HTTPSpec{URL: server.URL + "/busy"},
			expectErr: true,
			retryable: true,
		},
		{
			name:      "not found is permanent",
			spec:      &definition.HTTPSpec{URL: server.URL + "/missing"},
			expectErr: true,
		},
		{
			name:      "missing url",
			spec:      &definition.HTTPSpec{},
			expectErr: true,
		},
	}
	operator := New(WithClient(server.Client()))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			batch := []*flow.Context{{ID: "c1", Data: flow.NewData(map[string]interface{}{"id": "o-1"})}}
			err := operator.Operate(context.Background(), batch, &definition.Jober{Type: definition.JoberHTTP, HTTP: tc.spec, Fitables: tc.fitables})
			if tc.expectErr {
				require.Error(t, err)
				assert.Equal(t, tc.retryable, jober.Retryable(err))
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, tc.expected, batch[0].Data.BusinessData)
		})
	}
}

func TestOperator_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	batch := []*flow.Context{{ID: "c1", Data: flow.NewData(nil)}}
	err := New().Operate(context.Background(), batch, &definition.Jober{Type: definition.JoberHTTP, HTTP: &definition.HTTPSpec{URL: server.URL, Timeout: "50ms"}})
	require.Error(t, err)
	assert.True(t, jober.Retryable(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || jober.Retryable(err))
}

func TestResolveURL(t *testing.T) {
	data := flow.Values{"order": map[string]interface{}{"id": 7}, "region": "eu"}
	assert.Equal(t, "http://x/eu/orders/7", resolveURL("http://x/{$.region}/orders/{$.order.id}", data))
	assert.Equal(t, "http://x/", resolveURL("http://x/{$.missing}", data))
	assert.Equal(t, "http://x/{id}", resolveURL("http://x/{id}", data))
}
