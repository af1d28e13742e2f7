package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	connections prometheus.Gauge
	rejected    *prometheus.CounterVec
	events      *prometheus.CounterVec
}

// newMetrics registers collectors on reg. A nil reg yields unregistered collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Authenticated websocket connections currently registered.",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "realtime",
			Name:      "handshakes_rejected_total",
			Help:      "Websocket handshakes refused before upgrade, by reason.",
		}, []string{"reason"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Realtime events by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

func (m *metrics) event(typ, outcome string) {
	m.events.WithLabelValues(typ, outcome).Inc()
}
