package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrorMetrics counts structured errors rendered by the HTTP layer.
type ErrorMetrics struct {
	Total *prometheus.CounterVec
}

func NewErrorMetrics(reg prometheus.Registerer) *ErrorMetrics {
	factory := promauto.With(reg)
	return &ErrorMetrics{
		Total: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP error responses, by error type.",
		}, []string{"type"}),
	}
}
