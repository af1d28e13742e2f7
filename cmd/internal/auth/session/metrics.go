package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	outcomes *prometheus.CounterVec
}

// newMetrics registers collectors on reg. A nil reg yields unregistered collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session operations by operation and outcome.",
		}, []string{"op", "outcome"}),
	}
}

func (m *metrics) observe(op string, err error) {
	m.outcomes.WithLabelValues(op, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	switch err {
	case nil:
		return "ok"
	case ErrInvalidCredentials:
		return "invalid_credentials"
	case ErrInvalidOrExpired:
		return "invalid_or_expired"
	case ErrSubjectNotFound:
		return "subject_not_found"
	case ErrStoreUnavailable:
		return "store_unavailable"
	default:
		return "internal"
	}
}
