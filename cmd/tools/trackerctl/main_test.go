package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marker.tracker/internal/httputil"
)

type call struct {
	method, path, query string
	body                []byte
}

func newClient(t *testing.T) (*httputil.APIClient, *[]call) {
	t.Helper()
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, call{r.Method, r.URL.Path, r.URL.RawQuery, body})
		httputil.WriteJSONOK(w, map[string]string{"path": r.URL.Path})
	}))
	t.Cleanup(srv.Close)
	return httputil.NewAPIClient(srv.URL, srv.Client()), &calls
}

func TestRun_Commands(t *testing.T) {
	tests := []struct {
		args   []string
		method string
		path   string
		query  string
	}{
		{[]string{"start"}, http.MethodPost, "/api/tracking/start", ""},
		{[]string{"stop"}, http.MethodPost, "/api/tracking/stop", ""},
		{[]string{"status"}, http.MethodGet, "/api/status", ""},
		{[]string{"config"}, http.MethodGet, "/api/config", ""},
		{[]string{"sessions"}, http.MethodGet, "/api/sessions", ""},
		{[]string{"sessions", "5"}, http.MethodGet, "/api/sessions", "limit=5"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			client, calls := newClient(t)
			var out bytes.Buffer
			require.NoError(t, run(context.Background(), client, tt.args, &out))
			require.Len(t, *calls, 1)
			got := (*calls)[0]
			assert.Equal(t, tt.method, got.method)
			assert.Equal(t, tt.path, got.path)
			assert.Equal(t, tt.query, got.query)
			assert.Contains(t, out.String(), `"path": "`+tt.path+`"`)
		})
	}
}

func TestRun_ConfigPut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_port": 6001}`), 0o644))

	client, calls := newClient(t)
	require.NoError(t, run(context.Background(), client, []string{"config", path, "bench rig"}, io.Discard))
	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "note=bench+rig", got.query)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(got.body, &body))
	assert.Equal(t, float64(6001), body["server_port"])
}

func TestRun_Errors(t *testing.T) {
	client, calls := newClient(t)
	ctx := context.Background()

	assert.ErrorIs(t, run(ctx, client, nil, io.Discard), errUsage)
	assert.ErrorIs(t, run(ctx, client, []string{"dance"}, io.Discard), errUsage)
	assert.Error(t, run(ctx, client, []string{"sessions", "ten"}, io.Discard))
	assert.Error(t, run(ctx, client, []string{"config", "missing.json"}, io.Discard))
	assert.Empty(t, *calls, "invalid arguments never reach the server")
}

func TestRun_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.ServiceUnavailable(w, "no session store")
	}))
	defer srv.Close()

	err := run(context.Background(), httputil.NewAPIClient(srv.URL, nil), []string{"sessions"}, io.Discard)
	var apiErr *httputil.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "no session store", apiErr.Message)
}
