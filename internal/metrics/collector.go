package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	bolt "go.etcd.io/bbolt"
)

// TemplateStatsProvider reports how many active templates are stored
type TemplateStatsProvider interface {
	ActiveTemplates(ctx context.Context) (int, error)
}

var bucketMetrics = []byte("metrics")

// persistedFamilies are the counters that survive restarts.
var persistedFamilies = []string{
	"quotegen_template_resolutions_total",
	"quotegen_renders_total",
	"quotegen_documents_total",
	"quotegen_batch_items_total",
	"quotegen_api_requests_total",
	"quotegen_api_errors_total",
}

// CounterSnapshot maps a metric family to label keys and values. A label
// key is the series' name=value pairs joined with "|".
type CounterSnapshot map[string]map[string]float64

// Collector handles metrics persistence and system gauge updates
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	templates     TemplateStatsProvider
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time
	logger        *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector
func NewCollector(db *bolt.DB, m *Metrics, templates TemplateStatsProvider, storagePath string, flushInterval time.Duration, logger *slog.Logger) (*Collector, error) {
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		templates:     templates,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		logger:        logger.With("component", "metrics_collector"),
		stopCh:        make(chan struct{}),
	}

	if err := c.loadCounters(); err != nil {
		return nil, err
	}

	return c, nil
}

// Start begins the collector background tasks
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.persistLoop(ctx)
	go c.updateSystemMetrics(ctx)
}

// Stop stops the collector and persists final values
func (c *Collector) Stop() error {
	close(c.stopCh)
	c.wg.Wait()
	return c.persistCounters()
}

// loadCounters restores persisted counter values from BoltDB
func (c *Collector) loadCounters() error {
	var snapshot CounterSnapshot

	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMetrics).Get([]byte("counters"))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &snapshot); err != nil {
			c.logger.Warn("skipping unreadable persisted counters", "error", err)
			snapshot = nil
		}
		return nil
	})
	if err != nil {
		return err
	}

	vecs := c.counterVecs()
	for family, values := range snapshot {
		vec, ok := vecs[family]
		if !ok {
			continue
		}
		for key, v := range values {
			counter, err := vec.GetMetricWith(splitLabelKey(key))
			if err != nil {
				continue
			}
			counter.Add(v)
		}
	}
	return nil
}

func (c *Collector) counterVecs() map[string]*prometheus.CounterVec {
	return map[string]*prometheus.CounterVec{
		"quotegen_template_resolutions_total": c.metrics.TemplateResolutionsTotal,
		"quotegen_renders_total":              c.metrics.RendersTotal,
		"quotegen_documents_total":            c.metrics.DocumentsTotal,
		"quotegen_batch_items_total":          c.metrics.BatchItemsTotal,
		"quotegen_api_requests_total":         c.metrics.APIRequestsTotal,
		"quotegen_api_errors_total":           c.metrics.APIErrorsTotal,
	}
}

// Snapshot gathers the current values of the persisted counters
func (c *Collector) Snapshot() (CounterSnapshot, error) {
	families, err := c.metrics.Registry().Gather()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(persistedFamilies))
	for _, name := range persistedFamilies {
		wanted[name] = true
	}

	snapshot := make(CounterSnapshot)
	for _, mf := range families {
		if !wanted[mf.GetName()] || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		values := make(map[string]float64, len(mf.GetMetric()))
		for _, metric := range mf.GetMetric() {
			values[labelKey(metric.GetLabel())] = metric.GetCounter().GetValue()
		}
		snapshot[mf.GetName()] = values
	}
	return snapshot, nil
}

// persistCounters saves counter values to BoltDB
func (c *Collector) persistCounters() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot, err := c.Snapshot()
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMetrics).Put([]byte("counters"), data)
	})
}

// persistLoop periodically persists counter values
func (c *Collector) persistLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.persistCounters(); err != nil {
				c.logger.Warn("failed to persist counters", "error", err)
			}
		}
	}
}

// updateSystemMetrics periodically updates system gauges
func (c *Collector) updateSystemMetrics(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collectSystemMetrics(ctx)
		}
	}
}

// collectSystemMetrics collects current system state
func (c *Collector) collectSystemMetrics(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.templates != nil {
		n, err := c.templates.ActiveTemplates(ctx)
		if err == nil {
			c.metrics.TemplatesActive.Set(float64(n))
		}
	}
}

// labelKey serialises label pairs in name order
func labelKey(labels []*dto.LabelPair) string {
	sorted := append([]*dto.LabelPair(nil), labels...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].GetName() < sorted[j].GetName()
	})
	pairs := make([]string, len(sorted))
	for i, l := range sorted {
		pairs[i] = l.GetName() + "=" + l.GetValue()
	}
	return strings.Join(pairs, "|")
}

func splitLabelKey(key string) prometheus.Labels {
	labels := prometheus.Labels{}
	if key == "" {
		return labels
	}
	for _, pair := range strings.Split(key, "|") {
		name, value, _ := strings.Cut(pair, "=")
		labels[name] = value
	}
	return labels
}
