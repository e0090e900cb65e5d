package mcpui

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Bridge collectors. A nil *metrics is valid and records nothing.
type metrics struct {
	requests  *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	pending   prometheus.Gauge
	drops     *prometheus.CounterVec
	state     *prometheus.GaugeVec
	callTimes *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpui_outbound_requests_total",
				Help: "Total number of requests sent to the host",
			},
			[]string{"method"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpui_request_outcomes_total",
				Help: "Terminal outcomes of requests sent to the host",
			},
			[]string{"method", "outcome"},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpui_pending_requests",
				Help: "Requests awaiting a response or their timeout",
			},
		),
		drops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpui_dropped_envelopes_total",
				Help: "Inbound envelopes dropped without effect",
			},
			[]string{"reason"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcpui_session_state",
				Help: "Current session state, 1 for the active state",
			},
			[]string{"state"},
		),
		callTimes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "mcpui_tool_call_duration_seconds",
				Help: "Duration of tool calls until their outcome",
			},
			[]string{"tool_name"},
		),
	}
	reg.MustRegister(m.requests, m.outcomes, m.pending, m.drops, m.state, m.callTimes)
	return m
}

func (m *metrics) requestSent(method string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method).Inc()
	m.pending.Inc()
}

func (m *metrics) requestDone(method, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(method, outcome).Inc()
	m.pending.Dec()
}

func (m *metrics) observeCall(toolName string, seconds float64) {
	if m == nil {
		return
	}
	m.callTimes.WithLabelValues(toolName).Observe(seconds)
}

func (m *metrics) dropped(reason string) {
	if m == nil {
		return
	}
	m.drops.WithLabelValues(reason).Inc()
}

func (m *metrics) setState(state SessionState) {
	if m == nil {
		return
	}
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}
