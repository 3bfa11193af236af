package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	bolt "go.etcd.io/bbolt"
)

type mockTemplateStats struct {
	active int
}

func (m *mockTemplateStats) ActiveTemplates(ctx context.Context) (int, error) {
	return m.active, nil
}

func openTestDB(t *testing.T, path string) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	return db
}

func TestCollectorPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	db := openTestDB(t, path)

	m := New()
	c, err := NewCollector(db, m, nil, path, 10*time.Second, nil)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	m.DocumentsTotal.WithLabelValues("pdf", "success").Add(3)
	m.APIRequestsTotal.WithLabelValues("GET", "/templates/{id}", "200").Inc()

	if err := c.Stop(); err != nil {
		t.Fatalf("Failed to stop collector: %v", err)
	}
	db.Close()

	db2 := openTestDB(t, path)
	defer db2.Close()

	m2 := New()
	c2, err := NewCollector(db2, m2, nil, path, 10*time.Second, nil)
	if err != nil {
		t.Fatalf("Failed to recreate collector: %v", err)
	}
	defer c2.Stop()

	if got := counterValue(t, m2.DocumentsTotal.WithLabelValues("pdf", "success")); got != 3 {
		t.Errorf("restored documents = %f, want 3", got)
	}
	if got := counterValue(t, m2.APIRequestsTotal.WithLabelValues("GET", "/templates/{id}", "200")); got != 1 {
		t.Errorf("restored api requests = %f, want 1", got)
	}
}

func TestCollectSystemMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	db := openTestDB(t, path)
	defer db.Close()

	m := New()
	c, err := NewCollector(db, m, &mockTemplateStats{active: 4}, path, time.Second, nil)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	c.collectSystemMetrics(context.Background())

	var metric dto.Metric
	if err := m.TemplatesActive.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Gauge.GetValue() != 4 {
		t.Errorf("templates active = %f, want 4", metric.Gauge.GetValue())
	}

	var storage dto.Metric
	m.StorageUsedBytes.Write(&storage)
	if storage.Gauge.GetValue() <= 0 {
		t.Error("storage size not collected")
	}
}

func TestLabelKeyRoundTrip(t *testing.T) {
	name1, value1 := "mode", "pdf"
	name2, value2 := "status", "failed"
	key := labelKey([]*dto.LabelPair{
		{Name: &name2, Value: &value2},
		{Name: &name1, Value: &value1},
	})
	if key != "mode=pdf|status=failed" {
		t.Fatalf("labelKey() = %q", key)
	}
	labels := splitLabelKey(key)
	if labels["mode"] != "pdf" || labels["status"] != "failed" {
		t.Errorf("splitLabelKey() = %v", labels)
	}
}
