package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MatchMetrics records service-level telemetry for the match module.
type MatchMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)
	RecordReconcileAction(ctx context.Context, action string)
	RecordMarkerOperation(ctx context.Context, operation string, success bool)
}

// PrometheusMetrics implements MatchMetrics on a Prometheus registry.
type PrometheusMetrics struct {
	attempts         *prometheus.CounterVec
	successes        *prometheus.CounterVec
	failures         *prometheus.CounterVec
	durations        *prometheus.HistogramVec
	reconcileActions *prometheus.CounterVec
	markerOps        *prometheus.CounterVec
}

// NewPrometheusMetrics registers the match metric set on the given registry.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	m := &PrometheusMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_operation_attempts_total",
			Help: "Number of attempted service operations.",
		}, []string{"operation", "service"}),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_operation_successes_total",
			Help: "Number of successful service operations.",
		}, []string{"operation", "service"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_operation_failures_total",
			Help: "Number of failed service operations.",
		}, []string{"operation", "service"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matchday_operation_duration_seconds",
			Help:    "Duration of service operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "service"}),
		reconcileActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_reconcile_actions_total",
			Help: "Corrective actions taken by the reconciliation routine.",
		}, []string{"action"}),
		markerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_marker_operations_total",
			Help: "Marker store operations by outcome.",
		}, []string{"operation", "outcome"}),
	}
	registry.MustRegister(m.attempts, m.successes, m.failures, m.durations, m.reconcileActions, m.markerOps)
	return m
}

func (m *PrometheusMetrics) RecordOperationAttempt(_ context.Context, operation, service string) {
	m.attempts.WithLabelValues(operation, service).Inc()
}

func (m *PrometheusMetrics) RecordOperationSuccess(_ context.Context, operation, service string) {
	m.successes.WithLabelValues(operation, service).Inc()
}

func (m *PrometheusMetrics) RecordOperationFailure(_ context.Context, operation, service string) {
	m.failures.WithLabelValues(operation, service).Inc()
}

func (m *PrometheusMetrics) RecordOperationDuration(_ context.Context, operation, service string, duration time.Duration) {
	m.durations.WithLabelValues(operation, service).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordReconcileAction(_ context.Context, action string) {
	m.reconcileActions.WithLabelValues(action).Inc()
}

func (m *PrometheusMetrics) RecordMarkerOperation(_ context.Context, operation string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.markerOps.WithLabelValues(operation, outcome).Inc()
}

// NoOpMetrics is a MatchMetrics that does nothing; used in tests.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordOperationAttempt(context.Context, string, string)                 {}
func (NoOpMetrics) RecordOperationSuccess(context.Context, string, string)                 {}
func (NoOpMetrics) RecordOperationFailure(context.Context, string, string)                 {}
func (NoOpMetrics) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (NoOpMetrics) RecordReconcileAction(context.Context, string)                          {}
func (NoOpMetrics) RecordMarkerOperation(context.Context, string, bool)                    {}
