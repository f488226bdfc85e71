// Package metrics provides Prometheus metrics for the span index service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the span index service
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Index build metrics
	BuildsTotal       prometheus.Counter
	BuildDuration     prometheus.Histogram
	IndexedSpans      *prometheus.GaugeVec
	CarriedSpansTotal prometheus.Counter
	FreshSpansTotal   prometheus.Counter
	TranslationErrors *prometheus.CounterVec

	// Query metrics
	QueriesTotal *prometheus.CounterVec
	QueryResults prometheus.Histogram

	// Document metrics
	DocumentEditsTotal *prometheus.CounterVec
	DocumentsOpen      prometheus.Gauge

	// Server metrics
	ServerStartTime time.Time
}

// NewMetrics creates all metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}
	factory := promauto.With(reg)

	// gRPC request metrics
	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spanindex_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spanindex_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "spanindex_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	// Index build metrics
	m.BuildsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "spanindex_builds_total",
			Help: "Total number of published tree generations",
		},
	)

	m.BuildDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spanindex_build_duration_seconds",
			Help:    "Duration of tree builds in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	m.IndexedSpans = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spanindex_indexed_spans",
			Help: "Number of tag spans in the current generation",
		},
		[]string{"document"},
	)

	m.CarriedSpansTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "spanindex_carried_spans_total",
			Help: "Total number of spans carried over by rebuilds",
		},
	)

	m.FreshSpansTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "spanindex_fresh_spans_total",
			Help: "Total number of spans produced by tagging passes",
		},
	)

	m.TranslationErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spanindex_translation_errors_total",
			Help: "Total number of span translation failures",
		},
		[]string{"operation"},
	)

	// Query metrics
	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spanindex_queries_total",
			Help: "Total number of span queries by strategy",
		},
		[]string{"strategy"},
	)

	m.QueryResults = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spanindex_query_results",
			Help:    "Number of tag spans returned per query",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	// Document metrics
	m.DocumentEditsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spanindex_document_edits_total",
			Help: "Total number of document edit batches",
		},
		[]string{"source"},
	)

	m.DocumentsOpen = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "spanindex_documents_open",
			Help: "Number of open documents",
		},
	)

	// Server metrics
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "spanindex_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordBuild records a published generation
func (m *Metrics) RecordBuild(document string, spans, carried, fresh int, duration time.Duration) {
	m.BuildsTotal.Inc()
	m.BuildDuration.Observe(duration.Seconds())
	m.IndexedSpans.WithLabelValues(document).Set(float64(spans))
	m.CarriedSpansTotal.Add(float64(carried))
	m.FreshSpansTotal.Add(float64(fresh))
}

// RecordQuery records one query run with the given strategy
func (m *Metrics) RecordQuery(strategy string, results int) {
	m.QueriesTotal.WithLabelValues(strategy).Inc()
	m.QueryResults.Observe(float64(results))
}

// RecordTranslationError records a failed span translation
func (m *Metrics) RecordTranslationError(operation string) {
	m.TranslationErrors.WithLabelValues(operation).Inc()
}

// RecordEdit records an edit batch applied to a document
func (m *Metrics) RecordEdit(source string) {
	m.DocumentEditsTotal.WithLabelValues(source).Inc()
}

// ForgetDocument removes per-document series
func (m *Metrics) ForgetDocument(document string) {
	m.IndexedSpans.DeleteLabelValues(document)
}
