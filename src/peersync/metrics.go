package peersync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is the subsystem identifier for all metrics exposed by
// this package.
const MetricsSubsystem = "peersync"

// Metrics contains the metrics exposed by the sync manager.
type Metrics struct {
	AcceptedHeight prometheus.Gauge
	// Finished rounds, by request kind and outcome.
	Rounds *prometheus.CounterVec
	// Syncs holding a pool slot.
	InFlight prometheus.Gauge
	// Syncs refused because the pool was full.
	PoolRejected prometheus.Counter
	// 1 when the last sync exhausted its retries.
	Stalled prometheus.Gauge
}

// NewMetrics creates the sync metrics and registers them with reg, if not
// nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AcceptedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "accepted_height",
			Help:      "Delta height accepted from a quorum of peers.",
		}),
		Rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rounds_total",
			Help:      "Sync rounds by kind and outcome.",
		}, []string{"kind", "outcome"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "in_flight",
			Help:      "Syncs currently holding a pool slot.",
		}),
		PoolRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pool_rejected_total",
			Help:      "Syncs refused because the pool was full.",
		}),
		Stalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "stalled",
			Help:      "Whether the last sync exhausted its retries.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.AcceptedHeight, m.Rounds, m.InFlight, m.PoolRejected, m.Stalled)
	}
	return m
}

// NopMetrics returns metrics that are not registered anywhere.
func NopMetrics() *Metrics {
	return NewMetrics("", nil)
}
