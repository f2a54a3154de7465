// Package httputil holds the JSON response helpers shared by the HTTP
// handlers and a small client for the same API.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Doer is the part of *http.Client the API client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer, mostly for tests.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// APIClient talks JSON to a tracker monitor.
type APIClient struct {
	BaseURL string
	HTTP    Doer
}

// NewAPIClient returns a client for baseURL using http.DefaultClient when
// doer is nil.
func NewAPIClient(baseURL string, doer Doer) *APIClient {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &APIClient{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: doer}
}

// GetJSON issues a GET and decodes the response into out (unless nil).
func (c *APIClient) GetJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON issues a POST with an optional JSON body.
func (c *APIClient) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// PutJSON issues a PUT with a JSON body.
func (c *APIClient) PutJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, in, out)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes)); err == nil {
			if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
				apiErr.Message = eb.Error
			} else {
				apiErr.Message = strings.TrimSpace(string(data))
			}
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
