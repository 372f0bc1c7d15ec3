// Package metrics exposes Prometheus collectors for the analysis surfaces.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the HTTP and MCP surfaces report to.
type Recorder interface {
	// RecordAnalysis records one analysis of the given kind (clusters,
	// filter, wordfreq, trending, ...), its duration, the number of items it
	// returned and whether it failed.
	RecordAnalysis(kind string, duration time.Duration, resultSize int, err error)
	RecordHTTPStatus(statusCode int)
}

// Collector is the Prometheus Recorder.
type Collector struct {
	analyses   *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	resultSize *prometheus.HistogramVec
	httpStatus *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sociograph_analysis_total",
			Help: "Analyses run, by kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sociograph_analysis_failures_total",
			Help: "Analyses that returned an error, by kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sociograph_analysis_duration_seconds",
			Help:    "Analysis latency in seconds, by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		resultSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sociograph_analysis_result_size",
			Help:    "Items returned per analysis, by kind.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sociograph_http_status_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.analyses,
		c.failures,
		c.latency,
		c.resultSize,
		c.httpStatus,
	)
	return c
}

func (c *Collector) RecordAnalysis(kind string, duration time.Duration, resultSize int, err error) {
	c.analyses.WithLabelValues(kind).Inc()
	c.latency.WithLabelValues(kind).Observe(duration.Seconds())
	if err != nil {
		c.failures.WithLabelValues(kind).Inc()
		return
	}
	c.resultSize.WithLabelValues(kind).Observe(float64(resultSize))
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAnalysis(string, time.Duration, int, error) {}
func (Nop) RecordHTTPStatus(int)                             {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
