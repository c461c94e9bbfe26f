package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	escrows   *prometheus.CounterVec
	openGauge prometheus.Gauge
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking published escrow events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			escrows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "events",
				Name:      "transitions_total",
				Help:      "Count of escrow lifecycle events segmented by type.",
			}, []string{"type"}),
			openGauge: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "escrow",
				Subsystem: "events",
				Name:      "open_escrows",
				Help:      "Number of escrow records currently open.",
			}),
		}
		prometheus.MustRegister(eventRegistry.escrows, eventRegistry.openGauge)
	})
	return eventRegistry
}

// RecordTransition increments the lifecycle counter and adjusts the open
// escrow gauge for the supplied event type.
func (m *eventMetrics) RecordTransition(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	m.escrows.WithLabelValues(normalized).Inc()
	switch normalized {
	case "escrow.initialized":
		m.openGauge.Inc()
	case "escrow.exchanged", "escrow.cancelled":
		m.openGauge.Dec()
	}
}

// SetOpen overwrites the open escrow gauge, used after a rebuild.
func (m *eventMetrics) SetOpen(n int) {
	if m == nil {
		return
	}
	m.openGauge.Set(float64(n))
}
