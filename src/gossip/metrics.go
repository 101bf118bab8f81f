package gossip

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is the subsystem identifier for all metrics exposed by
// this package.
const MetricsSubsystem = "gossip"

// Metrics contains the metrics exposed by the gossip manager.
type Metrics struct {
	// Messages originated by this node.
	Broadcast prometheus.Counter
	// Valid messages seen for the first time.
	Received prometheus.Counter
	Duplicates prometheus.Counter
	// Messages dropped because of a bad signature or payload.
	Invalid prometheus.Counter
	RateLimited prometheus.Counter
	// Messages forwarded to other peers.
	Relayed prometheus.Counter
	SendErrors prometheus.Counter
	// Number of records holding a payload.
	Records prometheus.Gauge
}

// NewMetrics creates the gossip metrics and registers them with reg, if not
// nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		Broadcast:   counter("broadcast_total", "Messages originated by this node."),
		Received:    counter("received_total", "Messages received for the first time."),
		Duplicates:  counter("duplicates_total", "Messages already seen."),
		Invalid:     counter("invalid_total", "Messages dropped for a bad signature or payload."),
		RateLimited: counter("rate_limited_total", "Messages dropped by the per-peer rate limit."),
		Relayed:     counter("relayed_total", "Messages forwarded to other peers."),
		SendErrors:  counter("send_errors_total", "Failed sends to peers."),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "records",
			Help:      "Messages whose payload is still held.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Broadcast,
			m.Received,
			m.Duplicates,
			m.Invalid,
			m.RateLimited,
			m.Relayed,
			m.SendErrors,
			m.Records,
		)
	}
	return m
}

// NopMetrics returns metrics that are not registered anywhere.
func NopMetrics() *Metrics {
	return NewMetrics("", nil)
}
