// Package metrics exposes Prometheus instrumentation for authentication
// outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for authentication outcomes.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics holds the authentication metrics.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
	AuthDuration  *prometheus.HistogramVec
}

// New registers the metrics with the given registerer, or with the default
// registerer when nil is passed.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hmacd_auth_requests_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"result"},
		),
		AuthDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hmacd_auth_duration_seconds",
				Help:    "Duration of authentication attempts in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"result"},
		),
	}
}

// Observe records one authentication attempt.
func (m *Metrics) Observe(result string, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(result).Inc()
	m.AuthDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}
