package reputation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is the subsystem identifier for all metrics exposed by
// this package.
const MetricsSubsystem = "reputation"

// Metrics contains the metrics exposed by the reputation manager.
type Metrics struct {
	// Current score per peer.
	Score *prometheus.GaugeVec
	// Applied events by reason.
	Events *prometheus.CounterVec
	// Events dropped because a subscriber was not keeping up.
	SubscriberDrops prometheus.Counter
}

// NewMetrics creates the reputation metrics and registers them with reg, if
// not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peer_score",
			Help:      "Reputation score per peer.",
		}, []string{"peer"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "events_total",
			Help:      "Reputation events applied, by reason.",
		}, []string{"reason"}),
		SubscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "subscriber_drops_total",
			Help:      "Events not delivered to a slow subscriber.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Score, m.Events, m.SubscriberDrops)
	}
	return m
}

// NopMetrics returns metrics that are not registered anywhere.
func NopMetrics() *Metrics {
	return NewMetrics("", nil)
}
