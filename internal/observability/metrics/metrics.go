// Package metrics exposes Prometheus instrumentation for the coverage
// pipeline. All observe methods are nil-safe so call sites never guard.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// AssignmentMetrics counts arbiter intents and their outcomes.
type AssignmentMetrics struct {
	intentsTotal *prometheus.CounterVec
}

func NewAssignmentMetrics(reg prometheus.Registerer) *AssignmentMetrics {
	m := &AssignmentMetrics{
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coverage",
			Subsystem: "assignment",
			Name:      "intents_total",
			Help:      "Total intents submitted to the assignment arbiter",
		}, []string{"kind", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.intentsTotal)
	return m
}

func (m *AssignmentMetrics) ObserveIntent(kind, result string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(kind, result).Inc()
}

// CallMetrics covers the voice surface: webhook handling and call outcomes.
type CallMetrics struct {
	webhookTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	outcomesTotal  *prometheus.CounterVec
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coverage",
			Subsystem: "voice",
			Name:      "webhook_total",
			Help:      "Total call webhooks received",
		}, []string{"event_type", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coverage",
			Subsystem: "voice",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of call webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coverage",
			Subsystem: "voice",
			Name:      "call_outcomes_total",
			Help:      "Terminal outcomes of handled calls",
		}, []string{"purpose", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.webhookLatency, m.outcomesTotal)
	return m
}

func (m *CallMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, status).Inc()
}

func (m *CallMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

func (m *CallMetrics) ObserveOutcome(purpose, outcome string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(purpose, outcome).Inc()
}

// SMSMetrics counts wave sends and inbound replies.
type SMSMetrics struct {
	waveSendsTotal *prometheus.CounterVec
	repliesTotal   *prometheus.CounterVec
}

func NewSMSMetrics(reg prometheus.Registerer) *SMSMetrics {
	m := &SMSMetrics{
		waveSendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coverage",
			Subsystem: "sms",
			Name:      "wave_sends_total",
			Help:      "Total wave SMS sends",
		}, []string{"wave", "status"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coverage",
			Subsystem: "sms",
			Name:      "replies_total",
			Help:      "Total inbound SMS replies by classification",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.waveSendsTotal, m.repliesTotal)
	return m
}

func (m *SMSMetrics) ObserveWaveSend(wave, status string) {
	if m == nil {
		return
	}
	m.waveSendsTotal.WithLabelValues(wave, status).Inc()
}

func (m *SMSMetrics) ObserveReply(kind string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(kind).Inc()
}
