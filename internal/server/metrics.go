package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instrumentation for the metrics endpoint.
// Each instance carries its own registry so construction is safe to repeat.
type Metrics struct {
	registry       *prometheus.Registry
	handler        http.Handler
	activeRequests prometheus.Gauge
	requestsTotal  prometheus.Counter
	runsTotal      *prometheus.CounterVec
	fitFailures    prometheus.Counter
}

// NewMetrics creates a Metrics with request, run, and Go runtime collectors
// registered.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		activeRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "qcal_active_requests",
			Help: "Number of HTTP requests currently being served.",
		}),
		requestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "qcal_requests_total",
			Help: "Total number of HTTP requests served.",
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qcal_runs_total",
			Help: "Total number of calibration node runs by node and outcome.",
		}, []string{"node", "outcome"}),
		fitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "qcal_fit_failures_total",
			Help: "Total number of per-qubit fit failures across runs.",
		}),
	}

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return m
}

// IncrementActiveRequests records the start of an in-flight request.
func (m *Metrics) IncrementActiveRequests() {
	m.activeRequests.Inc()
	m.requestsTotal.Inc()
}

// DecrementActiveRequests records the end of an in-flight request.
func (m *Metrics) DecrementActiveRequests() {
	m.activeRequests.Dec()
}

// RecordRun counts a completed node run under its node name and outcome.
func (m *Metrics) RecordRun(node, outcome string) {
	m.runsTotal.WithLabelValues(node, outcome).Inc()
}

// RecordFitFailure counts a single qubit whose analysis failed to fit.
func (m *Metrics) RecordFitFailure() {
	m.fitFailures.Inc()
}

// WritePrometheus serves the registry contents in the Prometheus text format.
func (m *Metrics) WritePrometheus(w http.ResponseWriter, r *http.Request) {
	m.handler.ServeHTTP(w, r)
}
