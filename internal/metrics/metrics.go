package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "retention"

// Metrics holds the application collectors.
type Metrics struct {
	// Dispatch
	DeliveryAttempts *prometheus.CounterVec
	DispatchDuration prometheus.Histogram

	// Notification feed
	EventsIngested *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// A nil reg falls back to the default prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		DeliveryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Delivery attempts by channel and outcome",
		}, []string{"channel", "status"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent dispatching one campaign to all recipients",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "events_total",
			Help:      "Live events seen by notification sessions, by topic and result",
		}, []string{"topic", "result"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "active_sessions",
			Help:      "Notification sessions currently open",
		}),
	}
}

// NewNop returns collectors registered nowhere, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
