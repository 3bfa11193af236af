// Package ipfilter restricts HTTP listeners to a list of client networks
package ipfilter

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Filter checks client addresses against allowed prefixes.
// An empty filter allows everything.
type Filter struct {
	allowed []netip.Prefix
	logger  *slog.Logger
}

// New builds a filter from single addresses or CIDR prefixes. Invalid
// entries are logged and skipped.
func New(entries []string, logger *slog.Logger) *Filter {
	f := &Filter{logger: logger}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := ParsePrefix(entry)
		if err != nil {
			logger.Warn("invalid network entry", "entry", entry, "error", err)
			continue
		}
		f.allowed = append(f.allowed, prefix)
	}

	return f
}

// ParsePrefix parses an address or prefix. A bare address becomes a
// single-host prefix.
func ParsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Enabled reports whether any network is configured
func (f *Filter) Enabled() bool {
	return len(f.allowed) > 0
}

// Count returns the number of allowed networks
func (f *Filter) Count() int {
	return len(f.allowed)
}

// IsAllowed checks addr against the allowed networks
func (f *Filter) IsAllowed(addr netip.Addr) bool {
	if len(f.allowed) == 0 {
		return true
	}
	addr = addr.Unmap()
	for _, prefix := range f.allowed {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// IsAllowedString parses ip and checks it. Unparseable input is denied
// unless the filter is empty.
func (f *Filter) IsAllowedString(ip string) bool {
	if len(f.allowed) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	return f.IsAllowed(addr)
}

// ClientAddr returns the address of the connection peer. Forwarding
// headers are ignored here; RealIP rewrites RemoteAddr for trusted proxies.
func ClientAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// RealIP applies chi's RealIP only to requests whose peer is in f, so
// X-Forwarded-For and X-Real-IP are honoured for trusted proxies alone.
// An empty filter trusts nobody.
func (f *Filter) RealIP(next http.Handler) http.Handler {
	forwarded := middleware.RealIP(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.Enabled() {
			if addr, ok := ClientAddr(r); ok && f.IsAllowed(addr) {
				forwarded.ServeHTTP(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPMiddleware rejects requests from clients outside the allowed networks
// with 403 Forbidden.
func (f *Filter) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		addr, ok := ClientAddr(r)
		if !ok {
			f.logger.Warn("could not parse client IP", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if !f.IsAllowed(addr) {
			f.logger.Warn("access denied", "ip", addr.String(), "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
