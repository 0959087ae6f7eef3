// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for distributed tracing and exposes
// Prometheus metrics for the scheduling loop and the admin HTTP surface.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts admin HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests to the admin surface",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// CycleDuration measures how long one WorkerLoop cycle takes end to end.
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_cycle_duration_seconds",
			Help:    "Duration of one scheduling cycle",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)
	// RowsProcessedTotal counts rows processed by kind and outcome.
	RowsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_rows_processed_total",
			Help: "Total rows processed by transition kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	// RowsSkippedTotal counts rows skipped (lock contention, re-index, status mismatch).
	RowsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_rows_skipped_total",
			Help: "Total rows skipped before a transition was attempted",
		},
		[]string{"reason"},
	)
	// RetryExhaustedTotal counts rows whose retry counter reached the cap.
	RetryExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_retry_exhausted_total",
			Help: "Total rows whose retry counter reached the configured cap",
		},
		[]string{"kind"},
	)
	// LoopQuarantinedTotal counts rows quarantined by the loop detector.
	LoopQuarantinedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_loop_quarantined_total",
			Help: "Total rows quarantined into ManualCheckLoop",
		},
		[]string{"kind"},
	)
	// NotificationsTotal counts notifications emitted by severity.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_notifications_total",
			Help: "Total notifications emitted by severity",
		},
		[]string{"severity"},
	)
	// LockContentionTotal counts failed lock acquisitions.
	LockContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_lock_contention_total",
			Help: "Total failed lock acquisition attempts",
		},
	)
	// BatchTasksTotal counts batch processor task outcomes.
	BatchTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_tasks_total",
			Help: "Total batch tasks by outcome",
		},
		[]string{"outcome"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(RowsProcessedTotal)
	prometheus.MustRegister(RowsSkippedTotal)
	prometheus.MustRegister(RetryExhaustedTotal)
	prometheus.MustRegister(LoopQuarantinedTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(LockContentionTotal)
	prometheus.MustRegister(BatchTasksTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each admin HTTP request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}
