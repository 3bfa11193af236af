package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"golang.org/x/crypto/acme/autocert"
)

// ACMEManager manages automatic TLS certificates from Let's Encrypt
type ACMEManager struct {
	manager *autocert.Manager
	domains []string
}

// NewACMEManager creates a new ACME manager
func NewACMEManager(email string, domains []string, cacheDir string) *ACMEManager {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      email,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	return &ACMEManager{
		manager: m,
		domains: domains,
	}
}

// Domains returns the list of configured domains
func (a *ACMEManager) Domains() []string {
	return a.domains
}

// TLSConfig returns TLS configuration for the API listener. Certificates
// are obtained on first handshake through the TLS-ALPN-01 challenge, so
// no port 80 listener is needed.
func (a *ACMEManager) TLSConfig() *tls.Config {
	cfg := a.manager.TLSConfig()
	cfg.MinVersion = tls.VersionTLS12
	return cfg
}

// GetCachedCertificates reads certificates from cache without contacting Let's Encrypt
func (a *ACMEManager) GetCachedCertificates(ctx context.Context) ([]CertificateInfo, error) {
	cache, ok := a.manager.Cache.(autocert.DirCache)
	if !ok {
		return nil, fmt.Errorf("cache is not a directory cache")
	}

	var results []CertificateInfo
	for _, domain := range a.domains {
		data, err := cache.Get(ctx, domain)
		if err != nil {
			continue
		}

		cert, err := tls.X509KeyPair(data, data)
		if err != nil || len(cert.Certificate) == 0 {
			continue
		}
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			continue
		}
		results = append(results, *newCertificateInfo(domain, leaf))
	}

	return results, nil
}
