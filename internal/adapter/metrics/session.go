package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the session counters.
const (
	OutcomeRevoked         = "revoked"
	OutcomeAlreadyRevoked  = "already_revoked"
	OutcomeRotated         = "rotated"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
)

type SessionMetrics struct {
	Revocations *prometheus.CounterVec
	Issued      prometheus.Counter
	Rotations   *prometheus.CounterVec
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	factory := promauto.With(reg)
	return &SessionMetrics{
		Revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "revocations_total",
			Help:      "Logout attempts, by outcome.",
		}, []string{"outcome"}),
		Issued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "issued_total",
			Help:      "Session tokens issued at login.",
		}),
		Rotations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "rotations_total",
			Help:      "Session token refresh attempts, by outcome.",
		}, []string{"outcome"}),
	}
}
