// Package metrics defines the Prometheus collectors the service exports on
// /metrics.
//
// The collectors live in a struct registered against a caller-supplied
// Registerer rather than in package globals, so every test can build its own
// registry and read back exact values.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codeexec"

type Collector struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	InFlight          prometheus.Gauge
	Rejected          prometheus.Counter
	HistoryErrors     prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Collector {
	c := &Collector{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Executions by language and terminal stage.",
		}, []string{"language", "stage"}),

		// Runs are bounded by per-stage timeouts of a few seconds; compiles
		// of larger Java programs push into the tens.
		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock time from workspace creation to outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"language"}),

		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_in_flight",
			Help:      "Executions currently holding a concurrency slot.",
		}),

		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_busy_total",
			Help:      "Requests turned away because no concurrency slot freed up in time.",
		}),

		HistoryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_errors_total",
			Help:      "Execution records that could not be stored.",
		}),

		gatherer: reg,
	}

	reg.MustRegister(
		c.HTTPRequests,
		c.HTTPRequestDuration,
		c.Executions,
		c.ExecutionDuration,
		c.InFlight,
		c.Rejected,
		c.HistoryErrors,
	)
	return c
}

// NewDefault registers the collectors on a fresh registry that also carries
// the Go runtime and process collectors.
func NewDefault() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// ObserveExecution records one finished execution.
func (c *Collector) ObserveExecution(language, stage string, elapsed time.Duration) {
	c.Executions.WithLabelValues(language, stage).Inc()
	c.ExecutionDuration.WithLabelValues(language).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
