// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "negotiation"

// Metrics holds the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions     *prometheus.CounterVec
	messages        prometheus.Counter
	approvals       *prometheus.CounterVec
	executions      prometheus.Counter
	casRetries      prometheus.Counter
	published       *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	dropped         prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "License request status transitions.",
		}, []string{"from", "to"}),
		messages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_messages_total",
			Help:      "Thread messages posted.",
		}),
		approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Approval records appended.",
		}, []string{"stage", "decision"}),
		executions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_recorded_total",
			Help:      "Executed documents bound to accepted requests.",
		}),
		casRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflict_retries_total",
			Help:      "Mutations retried after a stale version write.",
		}),
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Realtime events delivered per publisher.",
		}, []string{"publisher"}),
		publishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Realtime events a publisher gave up on.",
		}, []string{"publisher"}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Realtime events dropped because the queue was full.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
	}
}

func (m *Metrics) StatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) MessagePosted() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

func (m *Metrics) ApprovalRecorded(stage, decision string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(stage, decision).Inc()
}

func (m *Metrics) ExecutionRecorded() {
	if m == nil {
		return
	}
	m.executions.Inc()
}

func (m *Metrics) VersionConflictRetry() {
	if m == nil {
		return
	}
	m.casRetries.Inc()
}

func (m *Metrics) EventPublished(publisher string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(publisher).Inc()
}

func (m *Metrics) EventPublishFailed(publisher string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(publisher).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) HTTPRequest(method, route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, code).Inc()
}
