package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func setupTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestLimiter(t *testing.T, db *bolt.DB, cfg *Config) *Limiter {
	t.Helper()
	l, err := NewLimiter(db, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	t.Cleanup(func() { l.Stop() })
	return l
}

func TestNewLimiterDefaultConfig(t *testing.T) {
	l := newTestLimiter(t, setupTestDB(t), nil)
	if l.config.FlushInterval != 10*time.Second {
		t.Errorf("expected default FlushInterval=10s, got %v", l.config.FlushInterval)
	}

	res, err := l.Allow(context.Background(), Request{IP: "10.0.0.1"})
	if err != nil || !res.Allowed {
		t.Errorf("unconfigured limiter should allow, got %+v, %v", res, err)
	}
}

func TestAllow(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *Config
		requests    []Request
		wantAllowed []bool
		wantLevel   Level
	}{
		{
			name:        "global hourly",
			cfg:         &Config{Global: &LimitConfig{DocumentsPerHour: 2}},
			requests:    []Request{{IP: "a"}, {IP: "b"}, {IP: "c"}},
			wantAllowed: []bool{true, true, false},
			wantLevel:   LevelGlobal,
		},
		{
			name:        "per IP is independent",
			cfg:         &Config{PerIP: &LimitConfig{DocumentsPerHour: 1}},
			requests:    []Request{{IP: "a"}, {IP: "b"}, {IP: "a"}},
			wantAllowed: []bool{true, true, false},
			wantLevel:   LevelIP,
		},
		{
			name:        "daily",
			cfg:         &Config{PerIP: &LimitConfig{DocumentsPerDay: 2}},
			requests:    []Request{{IP: "a"}, {IP: "a"}, {IP: "a"}},
			wantAllowed: []bool{true, true, false},
			wantLevel:   LevelIP,
		},
		{
			name:        "cost counts against quota",
			cfg:         &Config{Global: &LimitConfig{DocumentsPerHour: 5}},
			requests:    []Request{{Cost: 4}, {Cost: 2}, {Cost: 1}},
			wantAllowed: []bool{true, false, true},
			wantLevel:   LevelGlobal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.FlushInterval = time.Hour
			l := newTestLimiter(t, setupTestDB(t), tt.cfg)

			for i, req := range tt.requests {
				res, err := l.Allow(context.Background(), req)
				if err != nil {
					t.Fatalf("Allow() error = %v", err)
				}
				if res.Allowed != tt.wantAllowed[i] {
					t.Fatalf("request %d allowed = %v, want %v", i+1, res.Allowed, tt.wantAllowed[i])
				}
				if !res.Allowed {
					if res.DeniedBy != tt.wantLevel {
						t.Errorf("DeniedBy = %s, want %s", res.DeniedBy, tt.wantLevel)
					}
					if res.RetryAfter <= 0 {
						t.Errorf("RetryAfter = %v, want positive", res.RetryAfter)
					}
				}
			}
		})
	}
}

func TestWindowReset(t *testing.T) {
	l := newTestLimiter(t, setupTestDB(t), &Config{
		Global:        &LimitConfig{DocumentsPerHour: 1},
		FlushInterval: time.Hour,
	})
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if res, _ := l.Allow(ctx, Request{}); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
	if res, _ := l.Allow(ctx, Request{}); res.Allowed {
		t.Fatal("second request should be denied")
	}

	now = now.Add(time.Hour)
	if res, _ := l.Check(ctx, Request{}); !res.Allowed {
		t.Error("Check should allow after the window expires")
	}
	if res, _ := l.Allow(ctx, Request{}); !res.Allowed {
		t.Error("Allow should allow after the window expires")
	}
}

func TestCheckDoesNotCharge(t *testing.T) {
	l := newTestLimiter(t, setupTestDB(t), &Config{
		PerIP:         &LimitConfig{DocumentsPerHour: 1},
		FlushInterval: time.Hour,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if res, _ := l.Check(ctx, Request{IP: "a"}); !res.Allowed {
			t.Fatalf("Check %d denied", i+1)
		}
	}
	stats, err := l.GetStats(ctx, LevelIP, "a")
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.HourlyCount != 0 {
		t.Errorf("HourlyCount = %d after Check, want 0", stats.HourlyCount)
	}

	l.Allow(ctx, Request{IP: "a"})
	if res, _ := l.Check(ctx, Request{IP: "a"}); res.Allowed {
		t.Error("Check should deny once the quota is used")
	}
}

func TestPersistence(t *testing.T) {
	db := setupTestDB(t)
	cfg := &Config{PerIP: &LimitConfig{DocumentsPerDay: 10}, FlushInterval: time.Hour}
	ctx := context.Background()

	l, err := NewLimiter(db, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	l.Allow(ctx, Request{IP: "10.0.0.1", Cost: 3})
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	l2 := newTestLimiter(t, db, cfg)
	stats, err := l2.GetStats(ctx, LevelIP, "10.0.0.1")
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.DailyCount != 3 {
		t.Errorf("DailyCount = %d after reload, want 3", stats.DailyCount)
	}
}
