// Package metrics exposes Prometheus collectors for CLI invocations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "clibridge"
	subsystem = "invocation"
)

// Metrics reports invocation activity. A nil *Metrics is a no-op.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	shutdowns   *prometheus.CounterVec
	lines       *prometheus.CounterVec
	parseErrors *prometheus.CounterVec
	active      prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same names. Any other registration error
// panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		invocations: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "total",
			Help:      "Invocations by tool and outcome.",
		}, []string{"tool", "outcome"})),
		duration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Wall time from spawn to finalization.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"tool"})),
		shutdowns: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "shutdown_total",
			Help:      "Shutdown ladder stage reached by each invocation.",
		}, []string{"tool", "stage"})),
		lines: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lines_total",
			Help:      "Output lines consumed.",
		}, []string{"tool"})),
		parseErrors: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "parse_errors_total",
			Help:      "Output lines that were not valid JSON.",
		}, []string{"tool"})),
		active: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active",
			Help:      "Invocations currently running.",
		})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Started marks an invocation as running.
func (m *Metrics) Started() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// Finished records a completed invocation. outcome is "success" or
// "failure"; stage is the shutdown ladder stage.
func (m *Metrics) Finished(tool, outcome, stage string, lines, parseErrors int, d time.Duration) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.invocations.WithLabelValues(tool, outcome).Inc()
	m.duration.WithLabelValues(tool).Observe(d.Seconds())
	m.shutdowns.WithLabelValues(tool, stage).Inc()
	m.lines.WithLabelValues(tool).Add(float64(lines))
	m.parseErrors.WithLabelValues(tool).Add(float64(parseErrors))
}

// Rejected records an invocation that never spawned a process, e.g. with
// outcome "not_found" when the binary is missing.
func (m *Metrics) Rejected(tool, outcome string) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.invocations.WithLabelValues(tool, outcome).Inc()
}
