// Package metrics provides Prometheus metrics for the orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestrator.
type Metrics struct {
	WebhookRequestsTotal *prometheus.CounterVec
	WorkflowsTotal       *prometheus.CounterVec
	WorkflowDuration     *prometheus.HistogramVec
	PhaseSubmissions     *prometheus.CounterVec
	ProcessedRequests    prometheus.Gauge
	ActiveCooldowns      prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		WebhookRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_webhook_requests_total",
				Help: "Webhook intake decisions by status.",
			},
			[]string{"status"},
		),
		WorkflowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_workflows_total",
				Help: "Session-creation workflow outcomes.",
			},
			[]string{"outcome"},
		),
		WorkflowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_workflow_duration_seconds",
				Help:    "Session-creation workflow duration by outcome.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		PhaseSubmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_phase_submissions_total",
				Help: "Delayed phase transition submissions by phase and result.",
			},
			[]string{"phase", "result"},
		),
		ProcessedRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_processed_requests",
				Help: "Number of request ids held for deduplication.",
			},
		),
		ActiveCooldowns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_active_cooldowns",
				Help: "Number of projects currently in cooldown.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.WebhookRequestsTotal)
	reg.MustRegister(m.WorkflowsTotal)
	reg.MustRegister(m.WorkflowDuration)
	reg.MustRegister(m.PhaseSubmissions)
	reg.MustRegister(m.ProcessedRequests)
	reg.MustRegister(m.ActiveCooldowns)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWebhook increments the intake decision counter.
func (m *Metrics) RecordWebhook(status string) {
	m.WebhookRequestsTotal.WithLabelValues(status).Inc()
}

// RecordWorkflow records a workflow outcome and its duration.
func (m *Metrics) RecordWorkflow(outcome string, seconds float64) {
	m.WorkflowsTotal.WithLabelValues(outcome).Inc()
	m.WorkflowDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordPhaseSubmission increments the phase submission counter.
func (m *Metrics) RecordPhaseSubmission(phase, result string) {
	m.PhaseSubmissions.WithLabelValues(phase, result).Inc()
}

// SetState updates the tracked-state gauges.
func (m *Metrics) SetState(processedRequests, activeCooldowns int) {
	m.ProcessedRequests.Set(float64(processedRequests))
	m.ActiveCooldowns.Set(float64(activeCooldowns))
}
