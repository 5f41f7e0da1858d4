// Package observability holds the Prometheus metrics and the OpenTelemetry
// tracer used by the import service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orcamento"

// Metrics is a private registry with the import counters. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	passes      *prometheus.HistogramVec
	diagnostics *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// NewMetrics registers the import metrics plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_requests_total",
			Help:      "Parse requests by source and outcome.",
		}, []string{"source", "outcome"}),
		passes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of the budget and composition passes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pass"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Warnings, errors and divergences recorded by parses.",
		}, []string{"severity"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.passes,
		m.diagnostics,
		m.httpLatency,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest counts a finished parse request.
func (m *Metrics) ObserveRequest(source, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(source, outcome).Inc()
}

// ObservePass records the duration of one pass.
func (m *Metrics) ObservePass(pass string, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(pass).Observe(d.Seconds())
}

// ObserveDiagnostics adds a report's counts.
func (m *Metrics) ObserveDiagnostics(warnings, errors, divergences int) {
	if m == nil {
		return
	}
	m.diagnostics.WithLabelValues("warning").Add(float64(warnings))
	m.diagnostics.WithLabelValues("error").Add(float64(errors))
	m.diagnostics.WithLabelValues("divergence").Add(float64(divergences))
}

// ObserveHTTP records the latency of one HTTP request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(route, http.StatusText(status)).Observe(d.Seconds())
}
