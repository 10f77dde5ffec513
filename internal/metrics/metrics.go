// Package metrics provides Prometheus metrics for claude-web.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	JobsSubmittedTotal  prometheus.Counter
	JobsFinishedTotal   *prometheus.CounterVec
	JobDuration         *prometheus.HistogramVec
	JobQueueDepth       prometheus.Gauge
	InvocationsTotal    *prometheus.CounterVec
	InvocationDuration  prometheus.Histogram

	registry *prometheus.Registry
}

// invocationBuckets cover collaborator calls from a second to the timeout.
var invocationBuckets = []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180, 300}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claudeweb_http_requests_total",
				Help: "Total HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claudeweb_http_request_duration_seconds",
				Help:    "HTTP request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		JobsSubmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "claudeweb_jobs_submitted_total",
				Help: "Total jobs submitted to the queue.",
			},
		),
		JobsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claudeweb_jobs_finished_total",
				Help: "Total jobs that reached a terminal state, by status.",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claudeweb_job_duration_seconds",
				Help:    "Time from job start to completion, by status.",
				Buckets: invocationBuckets,
			},
			[]string{"status"},
		),
		JobQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "claudeweb_job_queue_depth",
				Help: "Jobs waiting in the queue.",
			},
		),
		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claudeweb_claude_invocations_total",
				Help: "Total claude CLI invocations by outcome.",
			},
			[]string{"outcome"},
		),
		InvocationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "claudeweb_claude_invocation_duration_seconds",
				Help:    "claude CLI invocation duration.",
				Buckets: invocationBuckets,
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.JobsSubmittedTotal,
		m.JobsFinishedTotal,
		m.JobDuration,
		m.JobQueueDepth,
		m.InvocationsTotal,
		m.InvocationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, code int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// JobSubmitted increments the submission counter.
func (m *Metrics) JobSubmitted() {
	m.JobsSubmittedTotal.Inc()
}

// JobFinished records a job reaching a terminal state.
func (m *Metrics) JobFinished(status string, d time.Duration) {
	m.JobsFinishedTotal.WithLabelValues(status).Inc()
	if d > 0 {
		m.JobDuration.WithLabelValues(status).Observe(d.Seconds())
	}
}

// SetQueueDepth sets the queue depth gauge.
func (m *Metrics) SetQueueDepth(depth int) {
	m.JobQueueDepth.Set(float64(depth))
}

// ObserveInvocation records one claude CLI invocation.
func (m *Metrics) ObserveInvocation(outcome string, d time.Duration) {
	m.InvocationsTotal.WithLabelValues(outcome).Inc()
	m.InvocationDuration.Observe(d.Seconds())
}
