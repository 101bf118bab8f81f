package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is the subsystem identifier for the metrics of the node
// itself.
const MetricsSubsystem = "node"

// Metrics contains the metrics exposed by a Node.
type Metrics struct {
	// Inbound envelopes, by kind and outcome ("handled", "invalid",
	// "unknown", "error").
	Envelopes *prometheus.CounterVec
	// Requests sent to peers, by kind.
	Requests *prometheus.CounterVec
	State    prometheus.Gauge
}

// NewMetrics creates the node metrics and registers them with reg, if not
// nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "envelopes_total",
			Help:      "Inbound envelopes.",
		}, []string{"kind", "outcome"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests_total",
			Help:      "Requests sent to peers.",
		}, []string{"kind"}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "state",
			Help:      "State of the node (0 Syncing, 1 Running, 2 Stalled, 3 Shutdown).",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Envelopes, m.Requests, m.State)
	}
	return m
}
