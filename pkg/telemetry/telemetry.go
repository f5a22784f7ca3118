// Package telemetry wires structured logging and Prometheus metrics, the
// ambient observability stack carried regardless of which feature-level
// Non-goals the spec names.
package telemetry

import (
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NewLogger builds a JSON slog.Logger writing to stdout, the idiomatic
// stdlib choice here: no third-party structured-logging library
// (zerolog/zap/logrus) appears anywhere in the retrieval pack.
func NewLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// RequestMetrics holds the Prometheus collectors for the HTTP surface.
type RequestMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewRequestMetrics builds and registers the request-level collectors.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_requests_total",
			Help: "Total requests handled by the proxy, by pattern and status class.",
		}, []string{"pattern", "status_class"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loom_request_duration_seconds",
			Help:    "Request latency in seconds, by pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pattern"}),
	}
	reg.MustRegister(m.Requests, m.Latency)
	return m
}

// Observe records one completed request.
func (m *RequestMetrics) Observe(pattern, statusClass string, d time.Duration) {
	m.Requests.WithLabelValues(pattern, statusClass).Inc()
	m.Latency.WithLabelValues(pattern).Observe(d.Seconds())
}
