package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the token service
type Metrics struct {
	registry *prometheus.Registry

	TokensIssued      prometheus.Counter
	TokensRefreshed   prometheus.Counter
	TokensRevoked     prometheus.Counter
	TokenValidations  *prometheus.CounterVec
	LoginAttempts     *prometheus.CounterVec
	EnforcerDecisions *prometheus.CounterVec
	PermissionChecks  *prometheus.CounterVec
}

// NewMetrics creates and registers the token service collectors
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_tokens_issued_total",
			Help: "Total number of access/refresh token pairs issued",
		}),
		TokensRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_tokens_refreshed_total",
			Help: "Total number of successful token refreshes",
		}),
		TokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_tokens_revoked_total",
			Help: "Total number of tokens revoked",
		}),
		TokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_token_validations_total",
			Help: "Token validation outcomes by status",
		}, []string{"status"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_login_attempts_total",
			Help: "Credential check outcomes",
		}, []string{"outcome"}),
		EnforcerDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_enforcer_decisions_total",
			Help: "Enforcement middleware decisions by kind",
		}, []string{"decision"}),
		PermissionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_permission_checks_total",
			Help: "Permission check results",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.TokensIssued,
		m.TokensRefreshed,
		m.TokensRevoked,
		m.TokenValidations,
		m.LoginAttempts,
		m.EnforcerDecisions,
		m.PermissionChecks,
	)

	return m
}

// Handler returns the Prometheus scrape handler for the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
