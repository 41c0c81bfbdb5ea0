package reqflow

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle.
// All methods are no-ops on a nil collector. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec

	backendFailures    *prometheus.CounterVec
	registeredRequests prometheus.Gauge
	cancellations      prometheus.Counter
	normalizeFallbacks *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqflow_requests_total",
				Help: "Total number of HTTP requests dispatched",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqflow_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reqflow_requests_in_flight",
				Help: "Number of HTTP requests currently on the wire",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqflow_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqflow_errors_total",
				Help: "Total number of failed requests by error type",
			},
			[]string{"type", "method", "endpoint"},
		),
		backendFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqflow_backend_failures_total",
				Help: "Responses rejected by the backend success predicate",
			},
			[]string{"endpoint", "recovered"},
		),
		registeredRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reqflow_registered_requests",
				Help: "Requests currently tracked for bulk cancellation",
			},
		),
		cancellations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reqflow_cancellations_total",
				Help: "Requests aborted by bulk cancellation",
			},
		),
		normalizeFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqflow_normalize_fallbacks_total",
				Help: "Binary bodies that could not be parsed as JSON and were left as text",
			},
			[]string{"response_type"},
		),
		registry: registry,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// RecordBackendFailure counts a failed success predicate.
func (mc *MetricsCollector) RecordBackendFailure(endpoint string, recovered bool) {
	if mc == nil {
		return
	}

	mc.backendFailures.WithLabelValues(endpoint, strconv.FormatBool(recovered)).Inc()
}

// RecordRegistered sets the registry size gauge.
func (mc *MetricsCollector) RecordRegistered(n int) {
	if mc == nil {
		return
	}

	mc.registeredRequests.Set(float64(n))
}

// RecordCancellations adds n bulk-cancelled requests.
func (mc *MetricsCollector) RecordCancellations(n int) {
	if mc == nil || n <= 0 {
		return
	}

	mc.cancellations.Add(float64(n))
}

// RecordNormalizeFallback counts a body left as text after a failed parse.
func (mc *MetricsCollector) RecordNormalizeFallback(responseType ResponseType) {
	if mc == nil {
		return
	}

	mc.normalizeFallbacks.WithLabelValues(string(responseType)).Inc()
}

// GetRegistry exposes the underlying prometheus registry, or nil when the
// collector was built on a Registerer that is not a *prometheus.Registry.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	reg, _ := mc.registry.(*prometheus.Registry)
	return reg
}
