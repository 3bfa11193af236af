package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`      // Redis template cache
	Render    RenderConfig    `yaml:"render"`     // Merge formatting and template scope
	PDF       PDFConfig       `yaml:"pdf"`        // Document production defaults
	RateLimit RateLimitConfig `yaml:"rate_limit"` // Document generation quotas
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"` // Prometheus metrics configuration
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`   // Max request body size (default: 4MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 120s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string      `yaml:"allowed_ips"`      // Client networks for /api/v1, empty allows all
	TrustedProxies []string      `yaml:"trusted_proxies"`  // Peers whose X-Forwarded-For/X-Real-IP is honoured
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS certificate settings for the API listener.
// Leaving it empty serves plain HTTP.
type TLSConfig struct {
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// Enabled reports whether certificates are configured
func (t TLSConfig) Enabled() bool {
	return t.ACME.Enabled || t.CertFile != "" || t.KeyFile != ""
}

// ACMEConfig contains Let's Encrypt ACME settings
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
}

// Storage drivers
const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// StorageConfig contains storage settings. Quotation snapshots and metric
// counters always live in the bolt file; templates follow Driver.
type StorageConfig struct {
	Driver string `yaml:"driver"` // bolt or postgres (default: bolt)
	Path   string `yaml:"path"`   // bolt database file
	DSN    string `yaml:"dsn"`    // PostgreSQL DSN when driver is postgres
}

// CacheConfig contains Redis template cache settings
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"` // Default: localhost:6379
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // Default: 10m
}

// RenderConfig contains rendering settings
type RenderConfig struct {
	Locale         string `yaml:"locale"`          // Number grouping locale (default: en-IN)
	CurrencySymbol string `yaml:"currency_symbol"` // Default: ₹
	DefaultScope   string `yaml:"default_scope"`   // Template category resolved by default (default: quotation)
}

// PDFConfig contains document production settings
type PDFConfig struct {
	Format           string        `yaml:"format"`      // A3, A4, A5, Letter, Legal (default: A4)
	Orientation      string        `yaml:"orientation"` // portrait or landscape
	Margins          MarginsConfig `yaml:"margins"`
	Quality          int           `yaml:"quality"`           // 1-100, below 100 compresses content (default: 100)
	ItemTimeout      time.Duration `yaml:"item_timeout"`      // Per-document conversion timeout (default: 30s)
	BatchConcurrency int           `yaml:"batch_concurrency"` // Parallel conversions per batch (default: 4)
	MaxBatchSize     int           `yaml:"max_batch_size"`    // Default: 100
}

// MarginsConfig holds page margins as CSS-like lengths ("10mm", "1cm").
type MarginsConfig struct {
	Top    string `yaml:"top"`
	Right  string `yaml:"right"`
	Bottom string `yaml:"bottom"`
	Left   string `yaml:"left"`
}

// RateLimitConfig contains document generation quotas. Quota counters are
// kept in the embedded database whatever the template storage driver.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Global limits (for entire server)
	Global *LimitValues `yaml:"global,omitempty"`

	// Limits per client IP
	PerIP *LimitValues `yaml:"per_ip,omitempty"`

	FlushInterval time.Duration `yaml:"flush_interval"` // Default: 10s
}

// LimitValues contains quota values. Zero disables a window.
type LimitValues struct {
	DocumentsPerHour int `yaml:"documents_per_hour"`
	DocumentsPerDay  int `yaml:"documents_per_day"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`    // Default: :9090
	Path          string        `yaml:"path"`           // Default: /metrics
	FlushInterval time.Duration `yaml:"flush_interval"` // Default: 10s
	AllowedIPs    []string      `yaml:"allowed_ips"`    // IP addresses/CIDRs allowed to access metrics
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = 4 << 20 // 4 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 120 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverBolt
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/quotegen/quotegen.db"
	}

	if c.Cache.Addr == "" {
		c.Cache.Addr = "localhost:6379"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 10 * time.Minute
	}

	if c.Render.Locale == "" {
		c.Render.Locale = "en-IN"
	}
	if c.Render.CurrencySymbol == "" {
		c.Render.CurrencySymbol = "₹"
	}
	if c.Render.DefaultScope == "" {
		c.Render.DefaultScope = "quotation"
	}

	if c.PDF.Format == "" {
		c.PDF.Format = "A4"
	}
	if c.PDF.Orientation == "" {
		c.PDF.Orientation = "portrait"
	}
	for _, m := range []*string{&c.PDF.Margins.Top, &c.PDF.Margins.Right, &c.PDF.Margins.Bottom, &c.PDF.Margins.Left} {
		if *m == "" {
			*m = "10mm"
		}
	}
	if c.PDF.Quality == 0 {
		c.PDF.Quality = 100
	}
	if c.PDF.ItemTimeout == 0 {
		c.PDF.ItemTimeout = 30 * time.Second
	}
	if c.PDF.BatchConcurrency == 0 {
		c.PDF.BatchConcurrency = 4
	}
	if c.PDF.MaxBatchSize == 0 {
		c.PDF.MaxBatchSize = 100
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Metrics defaults
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.API.TLS.ACME.CacheDir == "" {
		c.API.TLS.ACME.CacheDir = "/var/lib/quotegen/certs"
	}
	if c.RateLimit.FlushInterval == 0 {
		c.RateLimit.FlushInterval = 10 * time.Second
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBolt:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("invalid storage.driver: %s (must be bolt or postgres)", c.Storage.Driver)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if err := c.validateTLS(); err != nil {
		return err
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache is enabled")
	}
	if c.Cache.DB < 0 {
		return fmt.Errorf("cache.db must not be negative")
	}

	if err := c.validatePDF(); err != nil {
		return err
	}

	for name, lv := range map[string]*LimitValues{"global": c.RateLimit.Global, "per_ip": c.RateLimit.PerIP} {
		if lv != nil && (lv.DocumentsPerHour < 0 || lv.DocumentsPerDay < 0) {
			return fmt.Errorf("rate_limit.%s values must not be negative", name)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// validatePDF validates document production settings
// validateTLS validates TLS configuration
func (c *Config) validateTLS() error {
	tls := c.API.TLS
	hasCerts := tls.CertFile != "" || tls.KeyFile != ""

	if hasCerts && tls.ACME.Enabled {
		return fmt.Errorf("cannot use both manual certificates and ACME")
	}
	if hasCerts {
		if tls.CertFile == "" {
			return fmt.Errorf("api.tls.cert_file is required when using manual certificates")
		}
		if tls.KeyFile == "" {
			return fmt.Errorf("api.tls.key_file is required when using manual certificates")
		}
	}
	if tls.ACME.Enabled {
		if tls.ACME.Email == "" {
			return fmt.Errorf("api.tls.acme.email is required when ACME is enabled")
		}
		if len(tls.ACME.Domains) == 0 {
			return fmt.Errorf("api.tls.acme.domains must not be empty when ACME is enabled")
		}
	}
	return nil
}

func (c *Config) validatePDF() error {
	validFormats := map[string]bool{"A3": true, "A4": true, "A5": true, "LETTER": true, "LEGAL": true}
	if !validFormats[strings.ToUpper(c.PDF.Format)] {
		return fmt.Errorf("invalid pdf.format: %s (must be A3, A4, A5, Letter or Legal)", c.PDF.Format)
	}

	switch strings.ToLower(c.PDF.Orientation) {
	case "portrait", "landscape":
	default:
		return fmt.Errorf("invalid pdf.orientation: %s (must be portrait or landscape)", c.PDF.Orientation)
	}

	if c.PDF.Quality < 1 || c.PDF.Quality > 100 {
		return fmt.Errorf("pdf.quality must be between 1 and 100")
	}
	if c.PDF.BatchConcurrency < 0 {
		return fmt.Errorf("pdf.batch_concurrency must not be negative")
	}
	if c.PDF.MaxBatchSize < 0 {
		return fmt.Errorf("pdf.max_batch_size must not be negative")
	}
	return nil
}

// PDFOptions returns the page options as the raw option map understood by
// the PDF layer.
func (c *Config) PDFOptions() map[string]any {
	return map[string]any{
		"format":      c.PDF.Format,
		"orientation": c.PDF.Orientation,
		"quality":     float64(c.PDF.Quality),
		"margins": map[string]any{
			"top":    c.PDF.Margins.Top,
			"right":  c.PDF.Margins.Right,
			"bottom": c.PDF.Margins.Bottom,
			"left":   c.PDF.Margins.Left,
		},
	}
}
