// Package metrics exposes the bot's Prometheus counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "loyalty_bot"

// Metrics groups the bot's collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	Updates            *prometheus.CounterVec
	UpdateDuration     prometheus.Histogram
	FlowsCompleted     *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	StoreRecoveries    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound messages by route.",
		}, []string{"route"}),

		UpdateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Time spent handling one inbound message.",
			Buckets:   prometheus.DefBuckets,
		}),

		FlowsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_completed_total",
			Help:      "Multi-step flows that reached their final step.",
		}, []string{"flow"}),

		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected flow inputs by step.",
		}, []string{"step"}),

		StoreRecoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_recoveries_total",
			Help:      "Unreadable collection documents loaded as empty.",
		}, []string{"collection"}),
	}
}

// ObserveUpdate counts one routed message and its handling time.
func (m *Metrics) ObserveUpdate(route string, took time.Duration) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(route).Inc()
	m.UpdateDuration.Observe(took.Seconds())
}

// FlowCompleted counts a finished flow.
func (m *Metrics) FlowCompleted(flow string) {
	if m == nil {
		return
	}
	m.FlowsCompleted.WithLabelValues(flow).Inc()
}

// ValidationFailed counts rejected input at a step.
func (m *Metrics) ValidationFailed(step string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(step).Inc()
}

// StoreRecovered counts a collection loaded as empty after a failed read.
func (m *Metrics) StoreRecovered(collection string) {
	if m == nil {
		return
	}
	m.StoreRecoveries.WithLabelValues(collection).Inc()
}
