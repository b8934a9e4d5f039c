// Package metrics exposes Prometheus instrumentation for the dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Dispatcher holds the dispatcher's Prometheus collectors. All methods are
// nil-safe so callers can run without metrics (tests, one-shot CLI runs).
type Dispatcher struct {
	processed       *prometheus.CounterVec
	failed          *prometheus.CounterVec
	claimConflicts  prometheus.Counter
	handlerDuration *prometheus.HistogramVec
}

// NewDispatcher creates and registers the dispatcher collectors.
func NewDispatcher(reg prometheus.Registerer) *Dispatcher {
	m := &Dispatcher{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "millflow",
			Name:      "events_processed_total",
			Help:      "Business events that completed all handlers.",
		}, []string{"event_type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "millflow",
			Name:      "events_failed_total",
			Help:      "Business events that ended failed.",
		}, []string{"event_type"}),
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "millflow",
			Name:      "event_claim_conflicts_total",
			Help:      "Claims lost to another dispatcher worker.",
		}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "millflow",
			Name:      "handler_duration_seconds",
			Help:      "Handler action execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
	}

	reg.MustRegister(m.processed, m.failed, m.claimConflicts, m.handlerDuration)
	return m
}

// EventProcessed counts a completed event.
func (m *Dispatcher) EventProcessed(eventType string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(eventType).Inc()
}

// EventFailed counts a failed event.
func (m *Dispatcher) EventFailed(eventType string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(eventType).Inc()
}

// ClaimConflict counts a claim lost to another worker.
func (m *Dispatcher) ClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}

// ObserveHandler records one handler execution duration.
func (m *Dispatcher) ObserveHandler(handler string, seconds float64) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(handler).Observe(seconds)
}
