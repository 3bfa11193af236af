package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aspcranes/quotegen/internal/tls"
)

var tlsCmd = &cobra.Command{
	Use:   "tls",
	Short: "TLS certificate management",
}

var tlsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the API's TLS certificate status",
	RunE:  runTLSStatus,
}

func init() {
	tlsCmd.AddCommand(tlsStatusCmd)
	rootCmd.AddCommand(tlsCmd)
}

func runTLSStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	t := cfg.API.TLS

	if !t.Enabled() {
		fmt.Fprintln(out, "TLS is not configured")
		return nil
	}

	if !t.ACME.Enabled {
		info, err := tls.GetCertificateInfo(t.CertFile)
		if err != nil {
			return fmt.Errorf("failed to read certificate: %w", err)
		}
		fmt.Fprintln(out, "TLS Certificate (manual):")
		fmt.Fprintf(out, "  File: %s\n", t.CertFile)
		fmt.Fprintf(out, "  Subject: %s\n", info.Subject)
		fmt.Fprintf(out, "  Issuer: %s\n", info.Issuer)
		fmt.Fprintf(out, "  Valid from: %s\n", info.NotBefore.Format(time.RFC3339))
		fmt.Fprintf(out, "  Valid until: %s\n", info.NotAfter.Format(time.RFC3339))
		fmt.Fprintf(out, "  Days left: %d\n", info.DaysLeft)
		return nil
	}

	m := tls.NewACMEManager(t.ACME.Email, t.ACME.Domains, t.ACME.CacheDir)
	certs, err := m.GetCachedCertificates(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read cached certificates: %w", err)
	}
	if len(certs) == 0 {
		fmt.Fprintln(out, "ACME certificates not found in cache.")
		fmt.Fprintln(out, "They are obtained on the first HTTPS request to each domain.")
		return nil
	}

	fmt.Fprintln(out, "ACME Certificates:")
	for _, cert := range certs {
		status := "OK"
		if cert.DaysLeft < 30 {
			status = "renewal due"
		}
		fmt.Fprintf(out, "  %s: expires %s (%d days, %s)\n",
			cert.Domain, cert.NotAfter.Format("2006-01-02"), cert.DaysLeft, status)
	}
	return nil
}
