// Package metrics exposes Prometheus counters for capability issuance,
// admission decisions and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presign_http_requests_total",
			Help: "Total HTTP requests handled by the presign API",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "presign_http_request_duration_seconds",
			Help:    "Duration of HTTP requests handled by the presign API",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Admissions counts rate admission decisions by operation and result
	Admissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presign_rate_admissions_total",
			Help: "Rate admission decisions by operation and result",
		},
		[]string{"operation", "result"},
	)

	// Capabilities counts issuance outcomes by operation
	Capabilities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presign_capabilities_total",
			Help: "Capability issuance and file operation outcomes",
		},
		[]string{"operation", "outcome"},
	)

	// AuditWriteFailures counts audit records the sink failed to persist
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presign_audit_write_failures_total",
			Help: "Audit records that could not be written",
		},
	)

	// RateStoreFallbacks counts admissions served by the in-process fallback
	RateStoreFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presign_rate_store_fallbacks_total",
			Help: "Admissions decided by the in-process store after a shared store error",
		},
	)
)

// Admission results
const (
	ResultAdmitted = "admitted"
	ResultDenied   = "denied"
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and durations labelled by route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
