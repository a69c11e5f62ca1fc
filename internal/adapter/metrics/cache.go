package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TokenCacheMetrics tracks the Redis token -> holder index in front of the
// primary session store.
type TokenCacheMetrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Invalidations prometheus.Counter
	Errors        *prometheus.CounterVec
}

func NewTokenCacheMetrics(reg prometheus.Registerer) *TokenCacheMetrics {
	factory := promauto.With(reg)
	return &TokenCacheMetrics{
		Hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token_cache",
			Name:      "hits_total",
			Help:      "Token lookups answered from the cache.",
		}),
		Misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token_cache",
			Name:      "misses_total",
			Help:      "Token lookups that fell through to the primary store.",
		}),
		Invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token_cache",
			Name:      "invalidations_total",
			Help:      "Cached token entries dropped after revoke or rotation.",
		}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token_cache",
			Name:      "errors_total",
			Help:      "Cache operations that failed and were bypassed, by operation.",
		}, []string{"op"}),
	}
}
