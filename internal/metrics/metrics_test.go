package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Event("dispatched")
	m.Event("dispatched")
	m.Event("duplicate")
	m.Step("ASK_SUMMARY")
	m.DateResolution("parser", "ok", 5*time.Millisecond)
	m.Ticket("created", 40*time.Millisecond)
	m.NotifyFailed()
	m.SessionExpired()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("dispatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsTotal.WithLabelValues("ASK_SUMMARY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dateResolutions.WithLabelValues("parser", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticketsTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifyFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsExpired))
	assert.Equal(t, 2, testutil.CollectAndCount(m.collaboratorTime))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Event("x")
		m.Step("x")
		m.DateResolution("x", "y", time.Second)
		m.Ticket("x", time.Second)
		m.NotifyFailed()
		m.SessionExpired()
	})
}

func TestSessionGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	n := 3
	RegisterSessionGauge(reg, func() int { return n })

	count, err := testutil.GatherAndCount(reg, "jirabot_active_sessions")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
