package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the registrar
// core: HTTP traffic plus registration outcomes and settlement retries.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	registrationTotal  *prometheus.CounterVec
	decisionTotal      *prometheus.CounterVec
	settlementDuration prometheus.Histogram
	settlementRetries  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	registrationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_total",
		Help: "Registration attempts by outcome code",
	}, []string{"outcome"})

	decisionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_decisions_total",
		Help: "Approve/reject decisions by action and outcome code",
	}, []string{"action", "outcome"})

	settlementDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_tx_duration_seconds",
		Help:    "Duration of settlement transactions in seconds",
		Buckets: prometheus.DefBuckets,
	})

	settlementRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_tx_retries_total",
		Help: "Serialization-conflict retries of settlement transactions",
	})

	registry.MustRegister(requestDuration, requestTotal, registrationTotal, decisionTotal, settlementDuration, settlementRetries)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		registrationTotal:  registrationTotal,
		decisionTotal:      decisionTotal,
		settlementDuration: settlementDuration,
		settlementRetries:  settlementRetries,
	}
}

// Handler exposes the /metrics endpoint handler.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveRegistration records a registration attempt; outcome is "success" or
// the failure code.
func (s *MetricsService) ObserveRegistration(outcome string, duration time.Duration) {
	s.registrationTotal.WithLabelValues(outcome).Inc()
	s.settlementDuration.Observe(duration.Seconds())
}

// ObserveDecision records an approve or reject outcome.
func (s *MetricsService) ObserveDecision(action, outcome string) {
	s.decisionTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveSettlementRetry counts one serialization-conflict retry.
func (s *MetricsService) ObserveSettlementRetry() {
	s.settlementRetries.Inc()
}
