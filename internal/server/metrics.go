// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for the chat request metrics.
const (
	// outcomeOK marks a chat request that returned an answer.
	outcomeOK = "ok"
	// outcomeError marks a chat request that failed in the pipeline.
	outcomeError = "error"
	// outcomeInvalid marks a chat request rejected before reaching the pipeline.
	outcomeInvalid = "invalid"
)

// labelHandler is the "handler" label name used to partition HTTP metrics by
// the logical endpoint name rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// chatRequestsTotal counts completed /api/v1/chat requests, partitioned by
	// outcome: "ok", "error", or "invalid".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each /api/v1/chat
	// request from body decode to response completion.
	chatDurationSeconds *prometheus.HistogramVec

	// chatActiveRequests is the number of /api/v1/chat requests currently in
	// the pipeline.
	chatActiveRequests prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragchat",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/v1/chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragchat",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/v1/chat requests from receipt to response.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		chatActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragchat",
			Subsystem: "chat",
			Name:      "active_requests",
			Help:      "Number of /api/v1/chat requests currently in the pipeline.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragchat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragchat",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument wraps next with per-request HTTP metrics, labelled by the logical
// handler name rather than the raw path so session ids do not explode the
// label cardinality.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(elapsed.Seconds())
	})
}
