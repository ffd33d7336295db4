package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shree113/newcd/internal/auth"
	"github.com/Shree113/newcd/internal/executor"
	"github.com/Shree113/newcd/internal/language"
	"github.com/Shree113/newcd/internal/metrics"
	"github.com/Shree113/newcd/internal/model"
	"github.com/Shree113/newcd/internal/repository"
	"github.com/Shree113/newcd/internal/service"
)

type stubExecutor struct{}

func (stubExecutor) Execute(ctx context.Context, req service.Request) (*service.Response, error) {
	code := 0
	return &service.Response{Output: "ok:" + req.Language, Stage: executor.StageRan, ExitCode: &code}, nil
}

type stubHistory struct{}

func (stubHistory) Create(ctx context.Context, e *model.Execution) error { return nil }
func (stubHistory) GetByID(ctx context.Context, id string) (*model.Execution, error) {
	return &model.Execution{ID: id}, nil
}
func (stubHistory) List(ctx context.Context, opts repository.ListOptions) ([]model.Execution, error) {
	return []model.Execution{}, nil
}

func newTestServer(t *testing.T, deps Dependencies) *httptest.Server {
	t.Helper()
	reg, err := language.NewRegistry(language.Defaults())
	require.NoError(t, err)

	deps.Executor = stubExecutor{}
	deps.Catalog = reg
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{AllowedOrigins: []string{"http://localhost:3000"}}, deps, logger)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postExecute(t *testing.T, url, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(`{"code":"print(1)","language":"python"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t, Dependencies{History: stubHistory{}})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/api/languages", http.StatusOK},
		{http.MethodGet, "/api/executions", http.StatusOK},
		{http.MethodGet, "/api/executions/abc", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/execute", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	for _, path := range []string{"/execute", "/api/execute"} {
		resp := postExecute(t, ts.URL+path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRoutes_HistoryDisabled(t *testing.T) {
	ts := newTestServer(t, Dependencies{})

	resp, err := http.Get(ts.URL + "/api/executions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_Auth(t *testing.T) {
	tokens, err := auth.NewTokenService("test-secret-at-least-16", auth.DefaultIssuer)
	require.NoError(t, err)
	ts := newTestServer(t, Dependencies{Tokens: tokens})

	resp := postExecute(t, ts.URL+"/execute", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := tokens.Generate("student-1", time.Minute)
	require.NoError(t, err)
	resp = postExecute(t, ts.URL+"/api/execute", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Read-only routes stay open.
	langs, err := http.Get(ts.URL + "/api/languages")
	require.NoError(t, err)
	langs.Body.Close()
	assert.Equal(t, http.StatusOK, langs.StatusCode)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Dependencies{})

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/execute", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	allowed := preflight("http://localhost:3000")
	assert.Equal(t, "http://localhost:3000", allowed.Header.Get("Access-Control-Allow-Origin"))

	denied := preflight("https://evil.example")
	assert.Empty(t, denied.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsExposition(t *testing.T) {
	ts := newTestServer(t, Dependencies{})

	resp := postExecute(t, ts.URL+"/execute", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	m, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	body, err := io.ReadAll(m.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `codeexec_http_requests_total{method="POST",path="/execute",status="200"} 1`)
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	reg, err := language.NewRegistry(language.Defaults())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{Port: freePort(t)}, Dependencies{Executor: stubExecutor{}, Catalog: reg, Metrics: metrics.New(prometheus.NewRegistry())}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	port := ts.Listener.Addr().(*net.TCPAddr).Port
	ts.Close()
	return port
}
