package estateauth

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts authentication outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	AuthAttempts     *prometheus.CounterVec
	RefreshRotations *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg (if not nil)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estateauth",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		RefreshRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estateauth",
			Name:      "refresh_rotations_total",
			Help:      "Refresh token rotations by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.AuthAttempts, m.RefreshRotations)
	}
	return m
}

func (m *Metrics) observeAuth(flow string, err error) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(flow, outcomeOf(err)).Inc()
}

func (m *Metrics) observeRotation(err error) {
	if m == nil {
		return
	}
	outcome := outcomeOf(err)
	if errors.Is(err, ErrTokenMismatch) {
		outcome = "replayed"
	}
	m.RefreshRotations.WithLabelValues(outcome).Inc()
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch KindOf(err) {
	case KindValidation, KindConflict, KindAuthentication:
		return "rejected"
	case KindUpstream:
		return "upstream"
	default:
		return "error"
	}
}
