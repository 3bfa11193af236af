package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aspcranes/quotegen/internal/config"
	"github.com/aspcranes/quotegen/internal/document"
	"github.com/aspcranes/quotegen/internal/ipfilter"
	"github.com/aspcranes/quotegen/internal/metrics"
	"github.com/aspcranes/quotegen/internal/quote"
	"github.com/aspcranes/quotegen/internal/ratelimit"
	"github.com/aspcranes/quotegen/internal/template"
)

// ServerOptions contains options for creating the API server
type ServerOptions struct {
	Config     *config.APIConfig
	Templates  template.Store
	Resolver   *template.Resolver
	Quotations *quote.Storage
	Documents  *document.Service
	Limiter    *ratelimit.Limiter // optional PDF quotas
	TLS        *tls.Config        // nil serves plain HTTP
	Logger     *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *config.APIConfig
	templates  template.Store
	resolver   *template.Resolver
	quotations *quote.Storage
	documents  *document.Service
	limiter    *ratelimit.Limiter
	tlsConfig  *tls.Config
	filter     *ipfilter.Filter
	proxies    *ipfilter.Filter
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Default().API
	}

	s := &Server{
		router:     chi.NewRouter(),
		config:     cfg,
		templates:  opts.Templates,
		resolver:   opts.Resolver,
		quotations: opts.Quotations,
		documents:  opts.Documents,
		limiter:    opts.Limiter,
		tlsConfig:  opts.TLS,
		logger:     logger,
		startTime:  time.Now(),
	}
	s.filter = ipfilter.New(cfg.AllowedIPs, logger.With("component", "api_ipfilter"))
	s.proxies = ipfilter.New(cfg.TrustedProxies, logger.With("component", "api_proxies"))
	if s.filter.Enabled() {
		logger.Info("API IP filtering enabled", "allowed_networks", s.filter.Count())
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(s.proxies.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.filter.HTTPMiddleware)
		r.Use(metrics.HTTPMiddleware)
		r.Use(s.authMiddleware)
		r.Use(s.bodyLimitMiddleware)

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleCreateTemplate)
			r.Get("/default", s.handleDefaultTemplate)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Patch("/{id}", s.handlePatchTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
			r.Post("/{id}/default", s.handleSetDefault)
			r.Get("/{id}/versions", s.handleVersions)
			r.Get("/{id}/versions/{version}", s.handleRevision)
			r.Post("/{id}/preview", s.handlePreviewTemplate)
		})

		r.Route("/quotations", func(r chi.Router) {
			r.Post("/batch-pdf", s.handleBatchPDF)
			r.Get("/{id}", s.handleGetQuotation)
			r.Put("/{id}", s.handlePutQuotation)
			r.Get("/{id}/preview", s.handlePreviewQuotation)
			r.Post("/{id}/pdf", s.handleQuotationPDF)
		})
	})
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		TLSConfig:      s.tlsConfig,
	}

	if s.tlsConfig != nil {
		s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
		return s.httpServer.ListenAndServeTLS("", "")
	}
	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
