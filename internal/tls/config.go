// Package tls builds the API listener's TLS configuration from manual
// certificates or Let's Encrypt.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/aspcranes/quotegen/internal/config"
)

// ServerConfig returns the TLS configuration for cfg, or nil when TLS is
// not configured.
func ServerConfig(cfg config.TLSConfig) (*tls.Config, error) {
	switch {
	case cfg.ACME.Enabled:
		return NewACMEManager(cfg.ACME.Email, cfg.ACME.Domains, cfg.ACME.CacheDir).TLSConfig(), nil
	case cfg.CertFile != "":
		return LoadCertificate(cfg.CertFile, cfg.KeyFile)
	default:
		return nil, nil
	}
}

// LoadCertificate loads TLS certificate from PEM files
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// CertificateInfo describes a certificate on disk or in the ACME cache
type CertificateInfo struct {
	Domain    string
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
	DaysLeft  int
	DNSNames  []string
}

// GetCertificateInfo reads certificate info from a PEM file
func GetCertificateInfo(certFile string) (*CertificateInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return newCertificateInfo(cert.Subject.CommonName, cert), nil
}

func newCertificateInfo(domain string, cert *x509.Certificate) *CertificateInfo {
	return &CertificateInfo{
		Domain:    domain,
		Subject:   cert.Subject.CommonName,
		Issuer:    cert.Issuer.CommonName,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DaysLeft:  int(time.Until(cert.NotAfter).Hours() / 24),
		DNSNames:  cert.DNSNames,
	}
}
