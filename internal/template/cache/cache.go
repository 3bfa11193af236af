// Package cache provides a Redis read-through cache in front of a
// template.Store. Cache failures are logged and bypassed; the wrapped store
// stays the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aspcranes/quotegen/internal/metrics"
	"github.com/aspcranes/quotegen/internal/template"
)

const (
	// KeyPrefix is the Redis key prefix for cached templates.
	KeyPrefix = "quotegen:template:"

	// DefaultTTL is how long a template stays cached.
	DefaultTTL = 10 * time.Minute
)

// Connect creates a Redis client and verifies the connection with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Store caches Get results of the wrapped store. Every write invalidates
// the written id; writes that can move a default flag invalidate the whole
// prefix, since they rewrite sibling templates too.
type Store struct {
	next   template.Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ template.Store = (*Store)(nil)

// New wraps next. A zero ttl uses DefaultTTL.
func New(next template.Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "template_cache"),
	}
}

// Get returns the cached template or loads and caches it.
func (s *Store) Get(ctx context.Context, id string) (*template.Template, error) {
	data, err := s.client.Get(ctx, KeyPrefix+id).Bytes()
	switch {
	case err == nil:
		tmpl := &template.Template{}
		if err := json.Unmarshal(data, tmpl); err == nil {
			metrics.IncTemplateCache("hit")
			return tmpl, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "template_id", id)
		metrics.IncTemplateCache("error")
	case errors.Is(err, redis.Nil):
		metrics.IncTemplateCache("miss")
	default:
		metrics.IncTemplateCache("error")
		s.logger.Warn("template cache get error", "template_id", id, "error", err)
	}

	tmpl, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, tmpl)
	return tmpl, nil
}

func (s *Store) set(ctx context.Context, tmpl *template.Template) {
	data, err := json.Marshal(tmpl)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, KeyPrefix+tmpl.ID, data, s.ttl).Err(); err != nil {
		s.logger.Warn("template cache set error", "template_id", tmpl.ID, "error", err)
	}
}

// Invalidate removes one template from the cache.
func (s *Store) Invalidate(ctx context.Context, id string) {
	if err := s.client.Del(ctx, KeyPrefix+id).Err(); err != nil {
		s.logger.Warn("template cache invalidate error", "template_id", id, "error", err)
	}
}

// InvalidateAll removes every cached template by scanning for the prefix.
func (s *Store) InvalidateAll(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, KeyPrefix+"*", 100).Result()
		if err != nil {
			s.logger.Warn("template cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				s.logger.Warn("template cache bulk delete error", "error", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (s *Store) afterWrite(ctx context.Context, id string, defaultMoved bool) {
	if defaultMoved {
		s.InvalidateAll(ctx)
		return
	}
	s.Invalidate(ctx, id)
}

func (s *Store) GetDefault(ctx context.Context, scope string) (*template.Template, error) {
	return s.next.GetDefault(ctx, scope)
}

func (s *Store) List(ctx context.Context, filter template.ListFilter) ([]*template.Template, error) {
	return s.next.List(ctx, filter)
}

func (s *Store) Create(ctx context.Context, tmpl *template.Template) error {
	if err := s.next.Create(ctx, tmpl); err != nil {
		return err
	}
	if tmpl.IsDefault {
		s.InvalidateAll(ctx)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, tmpl *template.Template, expectedVersion int) error {
	err := s.next.Update(ctx, tmpl, expectedVersion)
	if err == nil {
		s.afterWrite(ctx, tmpl.ID, tmpl.IsDefault)
	}
	return err
}

func (s *Store) Patch(ctx context.Context, id string, patch template.Patch) (*template.Template, error) {
	tmpl, err := s.next.Patch(ctx, id, patch)
	if err == nil {
		s.afterWrite(ctx, id, tmpl.IsDefault)
	}
	return tmpl, err
}

func (s *Store) SetDefault(ctx context.Context, id string) (*template.Template, error) {
	tmpl, err := s.next.SetDefault(ctx, id)
	if err == nil {
		s.InvalidateAll(ctx)
	}
	return tmpl, err
}

func (s *Store) SoftDelete(ctx context.Context, id string) error {
	err := s.next.SoftDelete(ctx, id)
	if err == nil {
		s.Invalidate(ctx, id)
	}
	return err
}

func (s *Store) Versions(ctx context.Context, id string) ([]template.Revision, error) {
	return s.next.Versions(ctx, id)
}

func (s *Store) Revision(ctx context.Context, id string, version int) (*template.Revision, error) {
	return s.next.Revision(ctx, id, version)
}

// ActiveTemplates delegates to the wrapped store when it can count.
func (s *Store) ActiveTemplates(ctx context.Context) (int, error) {
	if p, ok := s.next.(metrics.TemplateStatsProvider); ok {
		return p.ActiveTemplates(ctx)
	}
	return 0, errors.New("wrapped store does not count templates")
}

// Close closes the wrapped store. The Redis client belongs to the caller.
func (s *Store) Close() error {
	return s.next.Close()
}
