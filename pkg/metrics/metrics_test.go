package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Lock("acquired")
		m.Audit("approve")
		m.Submission("created")
		m.SyncPass("success", 1, 1, 1, 1)
		m.Reminder("sent")
		m.Job("employee-sync", "succeeded")
	})
}

func TestSyncPassCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SyncPass("success", 0.5, 3, 2, 1)
	m.SyncPass("failure", 0.1, 0, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncPasses.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncPasses.WithLabelValues("failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SyncEmployees.WithLabelValues("added")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SyncEmployees.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncEmployees.WithLabelValues("deactivated")))
}

func TestNewWithNilRegistererDoesNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
