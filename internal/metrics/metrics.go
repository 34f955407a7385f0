// Package metrics exposes Prometheus instrumentation for the enforcement core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

var allStates = []domain.LockState{
	domain.StateInitializing,
	domain.StateUnprivileged,
	domain.StateEnforced,
	domain.StateSuspended,
	domain.StateAdminOverride,
}

// Metrics holds the kioskd collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Ticks       *prometheus.CounterVec
	Recoveries  *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	State       *prometheus.GaugeVec
}

// New creates the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Ticks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskd_watchdog_ticks_total",
				Help: "Watchdog ticks by outcome",
			},
			[]string{"outcome"},
		),
		Recoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskd_recoveries_total",
				Help: "Recovery actions by result",
			},
			[]string{"result"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kioskd_lock_transitions_total",
				Help: "Lock-mode state transitions",
			},
			[]string{"from", "to"},
		),
		State: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kioskd_lock_state",
				Help: "1 for the current lock-mode state, 0 otherwise",
			},
			[]string{"state"},
		),
	}

	for _, s := range allStates {
		m.State.WithLabelValues(s.String()).Set(0)
	}
	m.State.WithLabelValues(domain.StateInitializing.String()).Set(1)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TickCompleted counts a watchdog tick.
func (m *Metrics) TickCompleted(outcome domain.TickOutcome) {
	m.Ticks.WithLabelValues(string(outcome)).Inc()
}

// RecoveryAttempted counts a recovery action.
func (m *Metrics) RecoveryAttempted(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Recoveries.WithLabelValues(result).Inc()
}

// StateChanged records a transition and moves the state gauge.
func (m *Metrics) StateChanged(from, to domain.LockState) {
	m.Transitions.WithLabelValues(from.String(), to.String()).Inc()
	m.State.WithLabelValues(from.String()).Set(0)
	m.State.WithLabelValues(to.String()).Set(1)
}

// Ensure Metrics implements domain.Instrumentation.
var _ domain.Instrumentation = (*Metrics)(nil)
