// Package metrics defines the Prometheus collectors exported on /metrics.
// Every method is safe to call on a nil *Metrics, which is what tests and
// embedded uses pass when they do not care about instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inhouseaws"

// Metrics groups the service collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	messages        *prometheus.CounterVec
	sessions        prometheus.Counter
	queueMessages   *prometheus.GaugeVec
	reconcileRuns   *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "API requests by service, action and result code.",
		}, []string{"service", "action", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "API request latency, including long-poll waits.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"service", "action"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Message operations by kind (sent, deduplicated, received, deleted).",
		}, []string{"op"}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sts_sessions_issued_total",
			Help:      "Temporary credential sets issued by AssumeRoleWithWebIdentity.",
		}),
		queueMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_messages",
			Help:      "Messages per queue and state, as of the last reconciliation.",
		}, []string{"queue", "state"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation passes by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.messages,
		m.sessions,
		m.queueMessages,
		m.reconcileRuns,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
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
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one API call.
func (m *Metrics) ObserveRequest(service, action, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(service, action, code).Inc()
	m.requestDuration.WithLabelValues(service, action).Observe(elapsed.Seconds())
}

// MessagesSent counts newly stored messages.
func (m *Metrics) MessagesSent(n int) { m.addMessages("sent", n) }

// MessagesDeduplicated counts sends suppressed by the FIFO dedup window.
func (m *Metrics) MessagesDeduplicated(n int) { m.addMessages("deduplicated", n) }

// MessagesReceived counts leased messages.
func (m *Metrics) MessagesReceived(n int) { m.addMessages("received", n) }

// MessagesDeleted counts acknowledged messages.
func (m *Metrics) MessagesDeleted(n int) { m.addMessages("deleted", n) }

func (m *Metrics) addMessages(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messages.WithLabelValues(op).Add(float64(n))
}

// SessionIssued counts a federation session.
func (m *Metrics) SessionIssued() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SetQueueMessages publishes the reconciled counters of a queue.
func (m *Metrics) SetQueueMessages(queue string, visible, notVisible, delayed int) {
	if m == nil {
		return
	}
	m.queueMessages.WithLabelValues(queue, "visible").Set(float64(visible))
	m.queueMessages.WithLabelValues(queue, "not_visible").Set(float64(notVisible))
	m.queueMessages.WithLabelValues(queue, "delayed").Set(float64(delayed))
}

// ForgetQueue drops the gauges of a queue that no longer exists.
func (m *Metrics) ForgetQueue(queue string) {
	if m == nil {
		return
	}
	m.queueMessages.DeletePartialMatch(prometheus.Labels{"queue": queue})
}

// ReconcileRun counts a reconciliation pass.
func (m *Metrics) ReconcileRun(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.reconcileRuns.WithLabelValues(outcome).Inc()
}
