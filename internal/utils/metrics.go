package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	errors     *prometheus.CounterVec
	operations *prometheus.HistogramVec

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buddywalk_http_requests_total",
				Help: "Number of handled HTTP requests",
			},
			[]string{"route"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buddywalk_http_errors_total",
				Help: "Number of HTTP requests answered with an error",
			},
			[]string{"code"},
		),
		operations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buddywalk_operation_duration_seconds",
				Help:    "Latency of conversation engine operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		systemStartTime: time.Now(),
	}
	mc.registry.MustRegister(mc.requests, mc.errors, mc.operations)
	return mc
}

func (mc *MetricsCollector) IncrementRequests(route string) {
	mc.requests.WithLabelValues(route).Inc()
}

func (mc *MetricsCollector) IncrementErrors(code string) {
	mc.errors.WithLabelValues(code).Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operations.WithLabelValues(operationName).Observe(duration.Seconds())
}

// Uptime is the time since the collector was created.
func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

// Handler exposes the collected metrics in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
