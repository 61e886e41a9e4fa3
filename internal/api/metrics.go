package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	conversionsTotal  *prometheus.CounterVec
	convertedBytes    *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	queueEnqueued     *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaflow_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediaflow_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		conversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaflow_api_conversions_total",
			Help: "Synchronous conversions by pipeline, target format and outcome.",
		}, []string{"pipeline", "target", "outcome"}),
		convertedBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediaflow_api_converted_bytes",
			Help:    "Size of converted outputs in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"pipeline"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaflow_api_rate_limit_rejections_total",
			Help: "Total conversion requests rejected by rate limiting.",
		}, []string{"pipeline"}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaflow_queue_jobs_enqueued_total",
			Help: "Total conversions enqueued for the worker.",
		}, []string{"pipeline"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.conversionsTotal,
		m.convertedBytes,
		m.rateLimitRejected,
		m.queueEnqueued,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routeLabel(r)
		status := strconv.Itoa(statusOrOK(ww.Status()))

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func statusOrOK(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

// routeLabel returns the matched chi pattern. It is only complete once the
// router has dispatched the request, so middleware reads it after next.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
