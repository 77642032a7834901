package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Command outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics holds the collectors of a session.
type Metrics struct {
	commands *prometheus.CounterVec
	retries  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates the session collectors and registers them with reg.
// If reg is nil, the collectors are created but not exported.
// Sessions sharing a registry share the collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ble_session",
				Name:      "commands_total",
				Help:      "Backend commands by verb and outcome",
			},
			[]string{"engine", "verb", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ble_session",
				Name:      "retries_total",
				Help:      "Verbs retried after a recoverable backend failure",
			},
			[]string{"engine", "verb"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ble_session",
				Name:      "command_duration_seconds",
				Help:      "Time until a backend command resolved",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"engine", "verb"},
		),
	}

	if reg == nil {
		return m
	}

	m.commands = register(reg, m.commands)
	m.retries = register(reg, m.retries)
	m.latency = register(reg, m.latency)

	return m
}

// ObserveCommand records the outcome and duration of a backend command.
func (m *Metrics) ObserveCommand(engine, verb, outcome string, took time.Duration) {
	if m == nil {
		return
	}

	m.commands.WithLabelValues(engine, verb, outcome).Inc()
	m.latency.WithLabelValues(engine, verb).Observe(took.Seconds())
}

// ObserveRetry records a retried verb.
func (m *Metrics) ObserveRetry(engine, verb string) {
	if m == nil {
		return
	}

	m.retries.WithLabelValues(engine, verb).Inc()
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}

	return c
}
