package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAssignmentMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAssignmentMetrics(reg)

	m.ObserveIntent("accept", "accepted")
	m.ObserveIntent("accept", "accepted")
	m.ObserveIntent("accept", "race_lost")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.intentsTotal.WithLabelValues("accept", "accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.intentsTotal.WithLabelValues("accept", "race_lost")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var a *AssignmentMetrics
	var c *CallMetrics
	var s *SMSMetrics

	assert.NotPanics(t, func() {
		a.ObserveIntent("accept", "accepted")
		c.ObserveWebhook("call.answered", "ok")
		c.ObserveWebhookLatency("call.answered", 0.1)
		c.ObserveOutcome("inbound_coverage", "rescheduled")
		s.ObserveWaveSend("1", "sent")
		s.ObserveReply("affirmative")
	})
}
