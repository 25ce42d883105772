// Package metrics exposes Prometheus collectors for login and lifecycle events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Login outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeNoIdentifier = "no_identifier"
	OutcomeNotLinked    = "not_linked"
	OutcomeLinked       = "linked"
	OutcomeError        = "error"
	OutcomeInvalid      = "invalid"
)

type Metrics struct {
	Registry          *prometheus.Registry
	ExternalLogins    *prometheus.CounterVec
	PasswordLogins    *prometheus.CounterVec
	RuntimeLevel      prometheus.Gauge
	ApplicationErrors prometheus.Counter
}

// New registers every collector on a fresh registry, plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		ExternalLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "external_logins_total",
			Help:      "External login callbacks by provider and outcome.",
		}, []string{"provider", "outcome"}),
		PasswordLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "password_logins_total",
			Help:      "Local password logins by outcome.",
		}, []string{"outcome"}),
		RuntimeLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "backoffice",
			Name:      "runtime_level",
			Help:      "Current runtime level (0 unknown, 1 boot, 2 boot failed, 3 run, 4 terminated).",
		}),
		ApplicationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "backoffice",
			Name:      "application_errors_total",
			Help:      "Unhandled errors reported to the application.",
		}),
	}

	reg.MustRegister(
		m.ExternalLogins,
		m.PasswordLogins,
		m.RuntimeLevel,
		m.ApplicationErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ExternalLogin(provider, outcome string) {
	m.ExternalLogins.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) PasswordLogin(outcome string) {
	m.PasswordLogins.WithLabelValues(outcome).Inc()
}
