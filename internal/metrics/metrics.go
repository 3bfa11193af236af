package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for quotegen
type Metrics struct {
	// Template resolution and storage
	TemplateResolutionsTotal *prometheus.CounterVec
	TemplateStoreErrorsTotal *prometheus.CounterVec
	TemplateCacheTotal       *prometheus.CounterVec
	TemplatesActive          prometheus.Gauge

	// Rendering
	RendersTotal          *prometheus.CounterVec
	RenderDurationSeconds prometheus.Histogram
	ElementFallbacksTotal *prometheus.CounterVec

	// Document production
	DocumentsTotal          *prometheus.CounterVec
	DocumentDurationSeconds *prometheus.HistogramVec
	BatchItemsTotal         *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TemplateResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegen_template_resolutions_total",
				Help: "Total number of template resolutions by source",
			},
			[]string{"source"},
		),
		TemplateStoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegen_template_store_errors_total",
				Help: "Total number of failed template store operations",
			},
			[]string{"operation"},
		),
		TemplateCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegen_template_cache_total",
				Help: "Template cache lookups by result",
			},
			[]string{"result"},
		),
		TemplatesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quotegen_templates_active",
				Help: "Number of active stored templates",
			},
		),

		RendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegen_renders_total",
				Help: "Total number of rendered documents by template source",
			},
			[]string{"source"},
		),
		RenderDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quotegen_render_duration_seconds",
				Help:    "HTML render duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		ElementFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegen_element_fallbacks_total",
				Help: "Elements rendered through the generic fallback",
			},
			[]string{"type"},
		),

		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegen_documents_total",
				Help: "Total number of produced documents",
			},
			[]string{"mode", "status"},
		),
		DocumentDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotegen_document_duration_seconds",
				Help:    "Document production duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"mode"},
		),
		BatchItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegen_batch_items_total",
				Help: "Batch items processed by outcome",
			},
			[]string{"status"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegen_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotegen_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegen_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quotegen_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quotegen_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quotegen_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.TemplateResolutionsTotal,
		m.TemplateStoreErrorsTotal,
		m.TemplateCacheTotal,
		m.TemplatesActive,
		m.RendersTotal,
		m.RenderDurationSeconds,
		m.ElementFallbacksTotal,
		m.DocumentsTotal,
		m.DocumentDurationSeconds,
		m.BatchItemsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncTemplateResolution counts a resolved template by where it came from
func IncTemplateResolution(source string) {
	m := Global()
	if m != nil {
		m.TemplateResolutionsTotal.WithLabelValues(source).Inc()
	}
}

// IncTemplateStoreError counts a failed store operation
func IncTemplateStoreError(operation string) {
	m := Global()
	if m != nil {
		m.TemplateStoreErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// IncTemplateCache counts a cache lookup: hit, miss or error
func IncTemplateCache(result string) {
	m := Global()
	if m != nil {
		m.TemplateCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRender records one HTML render
func ObserveRender(source string, d time.Duration) {
	m := Global()
	if m != nil {
		m.RendersTotal.WithLabelValues(source).Inc()
		m.RenderDurationSeconds.Observe(d.Seconds())
	}
}

// IncElementFallback counts an element rendered generically
func IncElementFallback(elementType string) {
	m := Global()
	if m != nil {
		m.ElementFallbacksTotal.WithLabelValues(elementType).Inc()
	}
}

// ObserveDocument records one produced document
func ObserveDocument(mode, status string, d time.Duration) {
	m := Global()
	if m != nil {
		m.DocumentsTotal.WithLabelValues(mode, status).Inc()
		m.DocumentDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// IncBatchItems counts a processed batch item
func IncBatchItems(status string) {
	m := Global()
	if m != nil {
		m.BatchItemsTotal.WithLabelValues(status).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
