// Package metrics exports summarization and extraction metrics in
// Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docsummary"

var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// Metrics implements summarizer.Recorder. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	summaries       *prometheus.CounterVec
	summaryDuration *prometheus.HistogramVec
	estimatedTokens *prometheus.CounterVec

	modelCalls        *prometheus.CounterVec
	modelCallDuration *prometheus.HistogramVec

	extractions *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.summaries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Total number of summarization requests",
		},
		[]string{"method", "status"},
	)

	m.summaryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summary_duration_seconds",
			Help:      "Summarization latency in seconds",
			Buckets:   latencyBuckets,
		},
		[]string{"method"},
	)

	m.estimatedTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimated_tokens_total",
			Help:      "Estimated tokens consumed by successful summaries",
		},
		[]string{"method"},
	)

	m.modelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Total number of model backend calls",
		},
		[]string{"step", "status"},
	)

	m.modelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Model backend call latency in seconds",
			Buckets:   latencyBuckets,
		},
		[]string{"step"},
	)

	m.extractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Total number of PDF text extractions",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.summaries,
		m.summaryDuration,
		m.estimatedTokens,
		m.modelCalls,
		m.modelCallDuration,
		m.extractions,
	)

	return m
}

func (m *Metrics) ObserveSummary(method string, status string, elapsed time.Duration, tokens int) {
	if m == nil {
		return
	}

	if method == "" {
		method = "none"
	}

	m.summaries.WithLabelValues(method, status).Inc()
	m.summaryDuration.WithLabelValues(method).Observe(elapsed.Seconds())

	if tokens > 0 {
		m.estimatedTokens.WithLabelValues(method).Add(float64(tokens))
	}
}

func (m *Metrics) ObserveModelCall(step string, status string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.modelCalls.WithLabelValues(step, status).Inc()

	if elapsed > 0 {
		m.modelCallDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveExtraction(status string) {
	if m == nil {
		return
	}

	m.extractions.WithLabelValues(status).Inc()
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
