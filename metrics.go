package passport

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels
const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	LoginsTotal        *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
	PasswordResetTotal *prometheus.CounterVec
	OAuthFlowsTotal    *prometheus.CounterVec
	GateRequestsTotal  *prometheus.CounterVec
	OAuthStates        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passport_logins_total",
				Help: "Local login attempts by result",
			},
			[]string{"result"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passport_registrations_total",
				Help: "Registration attempts by result",
			},
			[]string{"result"},
		),
		PasswordResetTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passport_password_reset_total",
				Help: "Forgot/reset operations by stage and result",
			},
			[]string{"stage", "result"},
		),
		OAuthFlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passport_oauth_flows_total",
				Help: "Federated login steps by provider, stage and result",
			},
			[]string{"provider", "stage", "result"},
		),
		GateRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passport_gate_requests_total",
				Help: "Requests seen by the authentication gate by outcome",
			},
			[]string{"principal"},
		),
		OAuthStates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "passport_oauth_states",
				Help: "Outstanding OAuth state values in the in-memory store",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.LoginsTotal,
			m.RegistrationsTotal,
			m.PasswordResetTotal,
			m.OAuthFlowsTotal,
			m.GateRequestsTotal,
			m.OAuthStates,
		)
	}
	return m
}

func resultLabel(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

func (m *Metrics) observeLogin(err error) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeRegistration(err error) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeReset(stage string, err error) {
	if m == nil {
		return
	}
	m.PasswordResetTotal.WithLabelValues(stage, resultLabel(err)).Inc()
}

// ObserveOAuth records one federated login step.
func (m *Metrics) ObserveOAuth(provider, stage string, err error) {
	if m == nil {
		return
	}
	m.OAuthFlowsTotal.WithLabelValues(provider, stage, resultLabel(err)).Inc()
}

func (m *Metrics) observeGate(authenticated bool) {
	if m == nil {
		return
	}
	label := "anonymous"
	if authenticated {
		label = "authenticated"
	}
	m.GateRequestsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) setStates(n int) {
	if m == nil {
		return
	}
	m.OAuthStates.Set(float64(n))
}
