package correlation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is the subsystem identifier for all metrics exposed by
// this package.
const MetricsSubsystem = "correlation"

// Metrics contains the metrics exposed by correlation managers. Every series
// is labelled with the name of the manager, eg. "p2p" or "rpc".
type Metrics struct {
	Pending   *prometheus.GaugeVec
	Matched   *prometheus.CounterVec
	Evicted   *prometheus.CounterVec
	Unmatched *prometheus.CounterVec
	// Reputation events that could not be queued.
	DroppedEvents *prometheus.CounterVec
}

// NewMetrics creates the correlation metrics and registers them with reg, if
// not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	labels := []string{"manager"}
	m := &Metrics{
		Pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pending_requests",
			Help:      "Requests waiting for a response.",
		}, labels),
		Matched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "matched_total",
			Help:      "Responses matched to a pending request.",
		}, labels),
		Evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "evicted_total",
			Help:      "Requests evicted after their TTL.",
		}, labels),
		Unmatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "unmatched_total",
			Help:      "Responses that matched no pending request.",
		}, labels),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped_events_total",
			Help:      "Reputation events dropped because the sink was full.",
		}, labels),
	}
	if reg != nil {
		reg.MustRegister(m.Pending, m.Matched, m.Evicted, m.Unmatched, m.DroppedEvents)
	}
	return m
}

// NopMetrics returns metrics that are not registered anywhere.
func NopMetrics() *Metrics {
	return NewMetrics("", nil)
}
