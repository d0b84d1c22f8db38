// Package metrics holds the Prometheus collectors shared by the lifecycle
// manager, the reconciliation engine and the reminder pass.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "healthcert"

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	LockOutcomes  *prometheus.CounterVec
	Audits        *prometheus.CounterVec
	Submissions   *prometheus.CounterVec
	SyncPasses    *prometheus.CounterVec
	SyncEmployees *prometheus.CounterVec
	SyncDuration  prometheus.Histogram
	RemindersSent *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg uses a
// private registry so tests can build several instances.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		LockOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_lock_total",
			Help:      "Audit lock requests by outcome.",
		}, []string{"outcome"}),
		Audits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_total",
			Help:      "Completed certificate audits by action.",
		}, []string{"action"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Certificate submissions by path.",
		}, []string{"path"}),
		SyncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Directory reconciliation passes by result.",
		}, []string{"result"}),
		SyncEmployees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_employees_total",
			Help:      "Employee rows touched by reconciliation, by operation.",
		}, []string{"op"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		RemindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Expiry reminders by delivery result.",
		}, []string{"result"}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs by task and final state.",
		}, []string{"task", "state"}),
	}
	reg.MustRegister(
		m.LockOutcomes, m.Audits, m.Submissions,
		m.SyncPasses, m.SyncEmployees, m.SyncDuration,
		m.RemindersSent, m.JobsCompleted,
	)
	return m
}

// Lock records an audit lock outcome: acquired, refreshed or busy.
func (m *Metrics) Lock(outcome string) {
	if m == nil {
		return
	}
	m.LockOutcomes.WithLabelValues(outcome).Inc()
}

// Audit records a completed approve or reject.
func (m *Metrics) Audit(action string) {
	if m == nil {
		return
	}
	m.Audits.WithLabelValues(action).Inc()
}

// Submission records a created or resubmitted certificate.
func (m *Metrics) Submission(path string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(path).Inc()
}

// SyncPass records one reconciliation pass.
func (m *Metrics) SyncPass(result string, seconds float64, added, updated, deactivated int) {
	if m == nil {
		return
	}
	m.SyncPasses.WithLabelValues(result).Inc()
	m.SyncDuration.Observe(seconds)
	m.SyncEmployees.WithLabelValues("added").Add(float64(added))
	m.SyncEmployees.WithLabelValues("updated").Add(float64(updated))
	m.SyncEmployees.WithLabelValues("deactivated").Add(float64(deactivated))
}

// Reminder records one reminder delivery attempt.
func (m *Metrics) Reminder(result string) {
	if m == nil {
		return
	}
	m.RemindersSent.WithLabelValues(result).Inc()
}

// Job records a background job reaching a terminal state.
func (m *Metrics) Job(task, state string) {
	if m == nil {
		return
	}
	m.JobsCompleted.WithLabelValues(task, state).Inc()
}
