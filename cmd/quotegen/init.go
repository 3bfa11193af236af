package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aspcranes/quotegen/internal/config"
)

type initOptions struct {
	Output    string
	DataDir   string
	APIKey    string
	Driver    string
	DSN       string
	RedisAddr string
	Metrics   bool
	Force     bool
}

var initOpts initOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a quotegen configuration file",
	Long: `Create a quotegen configuration file with a generated API key.

Examples:
  # Embedded storage under /var/lib/quotegen
  quotegen init

  # PostgreSQL templates with a Redis cache
  quotegen init --driver postgres --dsn postgres://quotegen@localhost/quotegen --redis localhost:6379

  # Local testing
  quotegen init --data-dir ./data -o quotegen.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOpts.Output, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().StringVar(&initOpts.DataDir, "data-dir", "/var/lib/quotegen", "Data directory for the embedded database")
	initCmd.Flags().StringVar(&initOpts.APIKey, "api-key", "", "API key (auto-generated if not provided)")
	initCmd.Flags().StringVar(&initOpts.Driver, "driver", config.DriverBolt, "Template storage driver: bolt or postgres")
	initCmd.Flags().StringVar(&initOpts.DSN, "dsn", "", "PostgreSQL DSN for the postgres driver")
	initCmd.Flags().StringVar(&initOpts.RedisAddr, "redis", "", "Redis address for the template cache")
	initCmd.Flags().BoolVar(&initOpts.Metrics, "metrics", false, "Enable the Prometheus metrics server")
	initCmd.Flags().BoolVar(&initOpts.Force, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	opts := initOpts
	if opts.Driver == config.DriverPostgres && opts.DSN == "" {
		return fmt.Errorf("--dsn is required for the postgres driver")
	}
	if opts.APIKey == "" {
		opts.APIKey = generateRandomString(32)
	}

	if _, err := os.Stat(opts.Output); err == nil && !opts.Force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", opts.Output)
	}

	content := generateConfig(opts)

	// Refuse to write a file that would not load
	if _, err := config.Parse([]byte(content)); err != nil {
		return fmt.Errorf("generated configuration is invalid: %w", err)
	}

	if dir := filepath.Dir(opts.Output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(opts.Output, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printNextSteps(cmd.OutOrStdout(), opts)
	return nil
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig(opts initOptions) string {
	var b strings.Builder

	fmt.Fprintf(&b, `# quotegen configuration

api:
  listen_addr: ":8080"
  api_key: "%s"
  # allowed_ips: ["10.0.0.0/8"]
  # trusted_proxies: ["127.0.0.1"]
  # tls:
  #   acme:
  #     enabled: true
  #     email: "ops@example.com"
  #     domains: ["quotes.example.com"]

storage:
  driver: %s
  path: "%s"
`, opts.APIKey, opts.Driver, filepath.Join(opts.DataDir, "quotegen.db"))
	if opts.DSN != "" {
		fmt.Fprintf(&b, "  dsn: \"%s\"\n", opts.DSN)
	}

	if opts.RedisAddr != "" {
		fmt.Fprintf(&b, `
cache:
  enabled: true
  addr: "%s"
  ttl: 10m
`, opts.RedisAddr)
	} else {
		b.WriteString(`
# Uncomment to cache templates in Redis
# cache:
#   enabled: true
#   addr: "localhost:6379"
`)
	}

	b.WriteString(`
render:
  locale: "en-IN"
  currency_symbol: "₹"
  default_scope: "quotation"

pdf:
  format: A4
  orientation: portrait
  margins:
    top: "10mm"
    right: "10mm"
    bottom: "10mm"
    left: "10mm"
  item_timeout: 30s
  batch_concurrency: 4
  max_batch_size: 100

# Uncomment to cap PDF production
# rate_limit:
#   enabled: true
#   per_ip:
#     documents_per_hour: 200
#     documents_per_day: 2000

logging:
  level: info
  format: json
`)

	fmt.Fprintf(&b, `
metrics:
  enabled: %t
  listen_addr: ":9090"
  path: "/metrics"
`, opts.Metrics)

	return b.String()
}

func printNextSteps(w io.Writer, opts initOptions) {
	fmt.Fprintf(w, "Configuration written to %s\n", opts.Output)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next Steps")
	fmt.Fprintln(w, "==========")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Seed the starter templates:")
	fmt.Fprintf(w, "   quotegen template seed -c %s\n", opts.Output)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "2. Start the server:")
	fmt.Fprintf(w, "   quotegen serve -c %s\n", opts.Output)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "3. Render a quotation:")
	fmt.Fprintln(w, "   curl -X POST http://localhost:8080/api/v1/quotations/<id>/pdf \\")
	fmt.Fprintf(w, "     -H \"Authorization: Bearer %s\" -o quotation.pdf\n", opts.APIKey)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "API Key: %s\n", opts.APIKey)
}
