package ipfilter

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		entries   []string
		wantCount int
	}{
		{"empty list", nil, 0},
		{"single IPv4", []string{"192.168.1.1"}, 1},
		{"CIDR and address", []string{"10.0.0.0/8", "192.168.1.1"}, 2},
		{"whitespace and blanks", []string{" 10.0.0.1 ", "", "  "}, 1},
		{"invalid skipped", []string{"192.168.1.1", "not-an-ip", "10.0.0.0/33"}, 1},
		{"IPv6", []string{"::1", "fe80::/10"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.entries, newTestLogger())
			if f.Count() != tt.wantCount {
				t.Errorf("Count() = %d, want %d", f.Count(), tt.wantCount)
			}
			if f.Enabled() != (tt.wantCount > 0) {
				t.Errorf("Enabled() = %v with %d networks", f.Enabled(), tt.wantCount)
			}
		})
	}
}

func TestParsePrefix(t *testing.T) {
	tests := []struct {
		entry   string
		want    string
		wantErr bool
	}{
		{"192.168.1.7", "192.168.1.7/32", false},
		{"192.168.1.7/24", "192.168.1.0/24", false},
		{"::1", "::1/128", false},
		{"::ffff:10.0.0.1", "10.0.0.1/32", false},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := ParsePrefix(tt.entry)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePrefix() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("ParsePrefix() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFilter_IsAllowed(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		ip      string
		want    bool
	}{
		{"empty filter allows all", nil, "1.2.3.4", true},
		{"exact match", []string{"192.168.1.1"}, "192.168.1.1", true},
		{"exact no match", []string{"192.168.1.1"}, "192.168.1.2", false},
		{"CIDR contains", []string{"192.168.0.0/16"}, "192.168.1.100", true},
		{"CIDR not contains", []string{"192.168.0.0/16"}, "10.0.0.1", false},
		{"one of many", []string{"10.0.0.0/8", "172.16.0.0/12"}, "172.20.1.1", true},
		{"IPv6 CIDR", []string{"2001:db8::/32"}, "2001:db8::1", true},
		{"mapped IPv4", []string{"10.0.0.0/8"}, "::ffff:10.1.2.3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.entries, newTestLogger())
			if got := f.IsAllowed(netip.MustParseAddr(tt.ip)); got != tt.want {
				t.Errorf("IsAllowed(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestFilter_IsAllowedString(t *testing.T) {
	f := New([]string{"192.168.1.0/24"}, newTestLogger())

	if !f.IsAllowedString("192.168.1.50") {
		t.Error("IsAllowedString should allow IP in range")
	}
	if f.IsAllowedString("10.0.0.1") {
		t.Error("IsAllowedString should deny IP outside range")
	}
	if f.IsAllowedString("invalid") {
		t.Error("IsAllowedString should deny invalid IP")
	}
	if !New(nil, newTestLogger()).IsAllowedString("invalid") {
		t.Error("empty filter should allow anything")
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"forwarded header ignored", "203.0.113.50, 70.41.3.18", "", "127.0.0.1:1", "127.0.0.1"},
		{"real ip header ignored", "", "198.51.100.25", "10.0.0.9:1", "10.0.0.9"},
		{"remote addr", "", "", "192.168.1.100:54321", "192.168.1.100"},
		{"remote addr without port", "", "", "192.168.1.100", "192.168.1.100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			addr, ok := ClientAddr(req)
			if !ok || addr.String() != tt.want {
				t.Errorf("ClientAddr() = %v, %v; want %s", addr, ok, tt.want)
			}
		})
	}
}

func TestFilter_HTTPMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		entries    []string
		remoteAddr string
		wantStatus int
	}{
		{"empty filter allows all", nil, "1.2.3.4:1", http.StatusOK},
		{"allowed", []string{"192.168.0.0/16"}, "192.168.1.100:1", http.StatusOK},
		{"denied", []string{"192.168.0.0/16"}, "10.0.0.1:1", http.StatusForbidden},
		{"unparseable client", []string{"192.168.0.0/16"}, "pipe", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.entries, newTestLogger()).HTTPMiddleware(handler)

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestFilter_HTTPMiddleware_SpoofedForwardedFor(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := New([]string{"192.168.0.0/16"}, newTestLogger()).HTTPMiddleware(handler)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	req.Header.Set("X-Forwarded-For", "192.168.1.1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestFilter_RealIP(t *testing.T) {
	tests := []struct {
		name       string
		proxies    []string
		remoteAddr string
		xff        string
		want       string
	}{
		{"no trusted proxies", nil, "10.0.0.1:1", "192.168.1.1", "10.0.0.1"},
		{"untrusted peer", []string{"172.16.0.0/12"}, "10.0.0.1:1", "192.168.1.1", "10.0.0.1"},
		{"trusted proxy", []string{"172.16.0.0/12"}, "172.16.0.5:1", "192.168.1.1, 172.16.0.5", "192.168.1.1"},
		{"trusted proxy without header", []string{"172.16.0.0/12"}, "172.16.0.5:1", "", "172.16.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := New(tt.proxies, newTestLogger()).RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if addr, ok := ClientAddr(r); ok {
					got = addr.String()
				}
			}))

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("client = %q, want %q", got, tt.want)
			}
		})
	}
}
