package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	bolt "go.etcd.io/bbolt"

	"github.com/aspcranes/quotegen/internal/boltdb"
	"github.com/aspcranes/quotegen/internal/config"
	"github.com/aspcranes/quotegen/internal/document"
	"github.com/aspcranes/quotegen/internal/merge"
	"github.com/aspcranes/quotegen/internal/pdf"
	"github.com/aspcranes/quotegen/internal/quote"
	"github.com/aspcranes/quotegen/internal/render"
	"github.com/aspcranes/quotegen/internal/template"
	"github.com/aspcranes/quotegen/internal/template/cache"
	"github.com/aspcranes/quotegen/internal/template/pgstore"
)

// Services are the components shared by the server and the CLI.
type Services struct {
	DB         *bolt.DB
	Templates  template.Store
	Quotations *quote.Storage
	Resolver   *template.Resolver
	Renderer   *render.Renderer
	Producer   *document.Producer
	Documents  *document.Service

	redis  *redis.Client
	logger *slog.Logger
}

// OpenServices opens storage and builds the document pipeline from cfg.
func OpenServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	db, err := boltdb.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	s := &Services{DB: db, logger: logger}

	if err := s.openTemplates(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}

	s.Quotations, err = quote.NewStorage(db)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create quotation storage: %w", err)
	}

	s.Resolver = template.NewResolver(s.Templates, logger)
	s.Renderer = render.New(
		render.WithFormatter(merge.NewFormatter(cfg.Render.Locale, cfg.Render.CurrencySymbol)),
		render.WithLogger(logger),
	)
	s.Producer = document.NewProducer(
		pdf.NewFPDFConverter(logger),
		document.Config{
			ItemTimeout:  cfg.PDF.ItemTimeout,
			Concurrency:  cfg.PDF.BatchConcurrency,
			MaxBatchSize: cfg.PDF.MaxBatchSize,
		},
		logger,
	)
	s.Documents = document.NewService(
		s.Resolver,
		s.Renderer,
		s.Quotations,
		s.Producer,
		document.ServiceOptions{
			Scope: cfg.Render.DefaultScope,
			PDF:   pdf.ParseOptions(cfg.PDFOptions()),
		},
		logger,
	)
	return s, nil
}

// openTemplates selects the template backend and wraps it with the Redis
// cache when enabled. An unreachable Redis disables the cache.
func (s *Services) openTemplates(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		store, err := pgstore.Open(ctx, cfg.Storage.DSN, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open template database: %w", err)
		}
		s.Templates = store
		s.logger.Info("template storage", "driver", config.DriverPostgres)
	default:
		store, err := template.NewStorage(s.DB)
		if err != nil {
			return fmt.Errorf("failed to create template storage: %w", err)
		}
		s.Templates = store
		s.logger.Info("template storage", "driver", config.DriverBolt, "path", cfg.Storage.Path)
	}

	if !cfg.Cache.Enabled {
		return nil
	}
	client, err := cache.Connect(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	if err != nil {
		s.logger.Warn("template cache disabled", "addr", cfg.Cache.Addr, "error", err)
		return nil
	}
	s.redis = client
	s.Templates = cache.New(s.Templates, client, cfg.Cache.TTL, s.logger)
	s.logger.Info("template cache enabled", "addr", cfg.Cache.Addr, "ttl", cfg.Cache.TTL)
	return nil
}

// Close releases every store.
func (s *Services) Close() error {
	var errs []error
	if s.Templates != nil {
		errs = append(errs, s.Templates.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}
