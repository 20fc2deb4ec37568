package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains platform-level sortation metrics shared across components
type Metrics struct {
	// Correlation metrics
	ParcelsAdmitted   prometheus.Counter
	ReadingsBound     prometheus.Counter
	ReadingsUnmatched prometheus.Counter
	ParcelsTimedOut   prometheus.Counter
	ParcelsLost       prometheus.Counter
	QueueDepth        prometheus.Gauge

	// Decision metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration prometheus.Histogram
	RuleHits         *prometheus.CounterVec

	// Lifecycle metrics
	LifecycleTransitions *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ParcelsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sortengine",
			Subsystem: "correlation",
			Name:      "parcels_admitted_total",
			Help:      "Total parcels admitted to the correlation queue",
		}),
		ReadingsBound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sortengine",
			Subsystem: "correlation",
			Name:      "readings_bound_total",
			Help:      "Total DWS readings bound to pending parcels",
		}),
		ReadingsUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sortengine",
			Subsystem: "correlation",
			Name:      "readings_unmatched_total",
			Help:      "DWS readings with no eligible pending parcel",
		}),
		ParcelsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sortengine",
			Subsystem: "correlation",
			Name:      "parcels_timed_out_total",
			Help:      "Parcels evicted by the matching-window timeout scan",
		}),
		ParcelsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sortengine",
			Subsystem: "lifecycle",
			Name:      "parcels_lost_total",
			Help:      "Parcels reported lost by the sorter",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sortengine",
			Subsystem: "correlation",
			Name:      "queue_depth",
			Help:      "Parcels currently awaiting a DWS reading",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sortengine",
			Subsystem: "decision",
			Name:      "total",
			Help:      "Chute decisions by source and outcome",
		}, []string{"source", "outcome"}),
		DecisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sortengine",
			Subsystem: "decision",
			Name:      "duration_seconds",
			Help:      "Time from correlated reading to chute decision",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		RuleHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sortengine",
			Subsystem: "rules",
			Name:      "hits_total",
			Help:      "Rule matches by rule id",
		}, []string{"rule_id"}),
		LifecycleTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sortengine",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle stage transitions by target stage",
		}, []string{"stage"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sortengine",
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (1=connected)",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sortengine",
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total NATS reconnections",
		}),
	}
}
