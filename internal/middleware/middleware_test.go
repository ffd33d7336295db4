package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Shree113/newcd/internal/metrics"
)

func TestLogger_LogsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(Logger(logger))
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fine"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	line := buf.String()
	assert.Contains(t, line, "level=INFO")
	assert.Contains(t, line, `msg="request completed"`)
	assert.Contains(t, line, "status=200")
	assert.Contains(t, line, "bytes=4")
	assert.Regexp(t, `request_id=\S+`, line)

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status=404")
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	c := metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(Metrics(c))
	r.Get("/api/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/executions/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 3.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/executions/{id}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", unmatched, "404")))
}

func TestMetricsHandler_ExposesCollectors(t *testing.T) {
	c := metrics.New(prometheus.NewRegistry())
	c.ObserveExecution("python", "ran", 0)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `codeexec_executions_total{language="python",stage="ran"} 1`))
}
