// Package http calls remote HTTP endpoints with each row's businessData.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/oliveagle/jsonpath"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/jober"
)

const (
	defaultTimeout = 30 * time.Second
	resultKey      = "result"
)

var tokenExpr = regexp.MustCompile("{(.*?)}")

// Operator sends businessData as the JSON body and replaces it with the JSON response.
// The URL may carry {$.path} tokens resolved against businessData; when no URL is set each
// fitable is called as a URL and responses are merged in order.
type Operator struct {
	client *http.Client
}

func (o *Operator) Operate(ctx context.Context, batch []*flow.Context, spec *definition.Jober) error {
	endpoint := spec.HTTP
	if endpoint == nil {
		endpoint = &definition.HTTPSpec{}
	}
	targets := spec.Fitables
	if endpoint.URL != "" {
		targets = []string{endpoint.URL}
	}
	if len(targets) == 0 {
		return fmt.Errorf("http jober %v: url is required", spec.NodeID)
	}
	timeout := defaultTimeout
	if endpoint.Timeout != "" {
		var err error
		if timeout, err = time.ParseDuration(endpoint.Timeout); err != nil {
			return fmt.Errorf("http jober %v: invalid timeout: %w", spec.NodeID, err)
		}
	}
	for _, row := range batch {
		output := flow.Values{}
		for _, target := range targets {
			response, err := o.call(ctx, endpoint, resolveURL(target, row.Data.BusinessData), row.Data.BusinessData, timeout)
			if err != nil {
				return fmt.Errorf("context %v: %w", row.ID, err)
			}
			output.Merge(response)
		}
		row.Data.BusinessData = output
	}
	return nil
}

func (o *Operator) call(ctx context.Context, endpoint *definition.HTTPSpec, URL string, body flow.Values, timeout time.Duration) (flow.Values, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	method := strings.ToUpper(endpoint.Method)
	if method == "" {
		method = http.MethodPost
	}
	var reader io.Reader
	if method != http.MethodGet && method != http.MethodDelete {
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, URL, reader)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	for k, v := range endpoint.Headers {
		request.Header.Set(k, v)
	}
	response, err := o.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	if response.StatusCode >= http.StatusBadRequest {
		return nil, &jober.StatusError{Code: response.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return flow.Values{}, nil
	}
	var decoded interface{}
	if err = json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if values, ok := decoded.(map[string]interface{}); ok {
		return values, nil
	}
	return flow.Values{resultKey: decoded}, nil
}

// resolveURL replaces {$.path} tokens with values looked up in data
func resolveURL(URL string, data flow.Values) string {
	tokens := tokenExpr.FindAllString(URL, -1)
	if len(tokens) == 0 {
		return URL
	}
	source := map[string]interface{}(data)
	for _, token := range tokens {
		path := strings.Trim(token, "{}")
		if !strings.HasPrefix(path, "$") {
			continue
		}
		value, _ := jsonpath.JsonPathLookup(source, path)
		replacement := ""
		if value != nil {
			replacement = fmt.Sprintf("%v", value)
		}
		URL = strings.ReplaceAll(URL, token, replacement)
	}
	return URL
}

// Option customises the operator
type Option func(o *Operator)

// WithClient sets http client
func WithClient(client *http.Client) Option {
	return func(o *Operator) {
		o.client = client
	}
}

// New creates an http operator
func New(options ...Option) *Operator {
	ret := &Operator{client: http.DefaultClient}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}
