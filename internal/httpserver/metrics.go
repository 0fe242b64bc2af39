package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Activation outcomes recorded in the activations_total metric.
const (
	outcomeActivated      = "activated"
	outcomeRepeat         = "repeat"
	outcomeKeyNotFound    = "key_not_found"
	outcomeQuotaExceeded  = "quota_exceeded"
	outcomeInvalidRequest = "invalid_request"
	outcomeNotConfigured  = "not_configured"
	outcomeRateLimited    = "rate_limited"
	outcomeTimeout        = "timeout"
	outcomeError          = "error"
)

type metrics struct {
	activations *prometheus.CounterVec
	duration    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		activations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cnw_license",
			Name:      "activations_total",
			Help:      "Activation requests by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cnw_license",
			Name:      "activation_duration_seconds",
			Help:      "Time spent serving activation requests.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
