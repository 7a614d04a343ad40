package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the buffer orchestrator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	mutationsTotal    *prometheus.CounterVec
	mergedPushesTotal prometheus.Counter
	failuresTotal     *prometheus.CounterVec
	durationTotal     *prometheus.CounterVec
	endOfStreamTotal  prometheus.Counter
	activeSessions    prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mse_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mse_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mse_mutations_total",
			Help: "Store mutations started, by kind (append, evict)",
		}, []string{"kind"}),
		mergedPushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mse_merged_pushes_total",
			Help: "Append requests folded into a preceding append call",
		}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mse_mutation_failures_total",
			Help: "Store mutation failures, by recoverability",
		}, []string{"recoverable"}),
		durationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mse_duration_updates_total",
			Help: "Duration update attempts, by outcome (success, partial, failed)",
		}, []string{"status"}),
		endOfStreamTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mse_end_of_stream_total",
			Help: "End-of-stream signals sent to the store",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mse_active_sessions",
			Help: "Number of live engine sessions",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.mutationsTotal,
		m.mergedPushesTotal,
		m.failuresTotal,
		m.durationTotal,
		m.endOfStreamTotal,
		m.activeSessions,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncMutations counts one store call of the given kind.
func (m *Metrics) IncMutations(kind string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(kind).Inc()
}

// AddMergedPushes counts appends that rode along in another append's call.
func (m *Metrics) AddMergedPushes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mergedPushesTotal.Add(float64(n))
}

// IncMutationFailures counts one failed store call.
func (m *Metrics) IncMutationFailures(recoverable bool) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(strconv.FormatBool(recoverable)).Inc()
}

// IncDurationUpdates counts one duration update attempt by outcome.
func (m *Metrics) IncDurationUpdates(status string) {
	if m == nil {
		return
	}
	m.durationTotal.WithLabelValues(status).Inc()
}

// IncEndOfStream increments the end-of-stream counter.
func (m *Metrics) IncEndOfStream() {
	if m == nil {
		return
	}
	m.endOfStreamTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
