package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry         *prometheus.Registry
	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	activeJobs       prometheus.Gauge
	outputBytesTotal *prometheus.CounterVec
	webhookFailures  prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaflow_worker_jobs_total",
			Help: "Total queued conversions by pipeline and final status.",
		}, []string{"pipeline", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediaflow_worker_job_duration_seconds",
			Help:    "Processing duration for each queued conversion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediaflow_worker_active_jobs",
			Help: "Current number of conversions running in the worker.",
		}),
		outputBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaflow_worker_output_bytes_total",
			Help: "Total bytes written by successful queued conversions.",
		}, []string{"pipeline"}),
		webhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaflow_worker_webhook_failures_total",
			Help: "Webhook notifications that could not be delivered.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.outputBytesTotal,
		m.webhookFailures,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
