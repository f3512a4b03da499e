// Package metrics exposes prometheus metrics for pipeline runs and caches.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlasmap-sc/rankratio/internal/cache"
	"github.com/atlasmap-sc/rankratio/internal/pipeline"
	"github.com/atlasmap-sc/rankratio/internal/table"
)

const (
	datasetLabel = "dataset"
	outcomeLabel = "outcome"
	kindLabel    = "kind"
	resultLabel  = "result"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	pipelineRuns     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	dropped          *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	runQueueDepth    prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rankratio_pipeline_runs_total",
			Help: "Count of pipeline runs by dataset and outcome",
		}, []string{datasetLabel, outcomeLabel}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rankratio_pipeline_duration_seconds",
			Help:    "Wall time of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{datasetLabel}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rankratio_dropped_identifiers_total",
			Help: "Count of features and samples dropped by pipeline runs",
		}, []string{datasetLabel, kindLabel}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rankratio_payload_cache_requests_total",
			Help: "Count of payload cache lookups by result",
		}, []string{resultLabel}),
		runQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rankratio_run_queue_depth",
			Help: "Number of queued asynchronous runs",
		}),
	}

	m.registry.MustRegister(
		m.pipelineRuns,
		m.pipelineDuration,
		m.dropped,
		m.cacheRequests,
		m.runQueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome classifies a pipeline error for labelling.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, table.ErrValidation):
		return "validation_error"
	case errors.Is(err, table.ErrMatch):
		return "match_error"
	case errors.Is(err, table.ErrParameter):
		return "parameter_error"
	default:
		return "error"
	}
}

// ObservePipeline records one pipeline run. report may be nil when err is set.
func (m *Metrics) ObservePipeline(dataset string, elapsed time.Duration, report *pipeline.Report, err error) {
	m.pipelineRuns.WithLabelValues(dataset, Outcome(err)).Inc()
	m.pipelineDuration.WithLabelValues(dataset).Observe(elapsed.Seconds())
	if report == nil {
		return
	}

	counts := map[string]int{
		"ranked_features":  report.Unsupported.RankedFeatures,
		"table_features":   report.Unsupported.TableFeatures,
		"metadata_samples": report.Unsupported.MetadataSamples,
		"table_samples":    report.Unsupported.TableSamples,
		"extreme_features": report.ExtremeRemovedFeatures,
		"empty_samples":    report.EmptyRemovedSamples,
		"empty_features":   report.EmptyRemovedFeatures,
	}
	for kind, n := range counts {
		if n > 0 {
			m.dropped.WithLabelValues(dataset, kind).Add(float64(n))
		}
	}
}

// CacheLookup records a payload cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// SetQueueDepth records the number of queued runs.
func (m *Metrics) SetQueueDepth(n int) {
	m.runQueueDepth.Set(float64(n))
}

// WatchCache exports cache occupancy as gauges read at scrape time. It must be
// called at most once per Metrics.
func (m *Metrics) WatchCache(stats func() cache.Stats) {
	gauge := func(name, help string, get func(cache.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(get(stats()))
		})
	}
	m.registry.MustRegister(
		gauge("rankratio_payload_cache_entries", "Number of encoded payloads in the payload cache",
			func(s cache.Stats) int { return s.PayloadEntries }),
		gauge("rankratio_payload_cache_bytes", "Bytes allocated by the payload cache",
			func(s cache.Stats) int { return s.PayloadBytes }),
		gauge("rankratio_query_cache_entries", "Number of per-feature results in the query cache",
			func(s cache.Stats) int { return s.QueryEntries }),
	)
}
