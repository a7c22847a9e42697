// Package ipfilter restricts HTTP endpoints to a list of addresses and networks
package ipfilter

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Filter checks client addresses against allowed prefixes
type Filter struct {
	prefixes []netip.Prefix
	logger   *slog.Logger
}

// New creates a filter from single addresses and CIDRs. Invalid entries are
// logged and skipped; an empty list allows everyone.
func New(allowedIPs []string, logger *slog.Logger) *Filter {
	f := &Filter{logger: logger}

	for _, entry := range allowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("invalid CIDR in allowed_ips", "cidr", entry, "error", err)
				continue
			}
			f.prefixes = append(f.prefixes, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			logger.Warn("invalid IP in allowed_ips", "ip", entry)
			continue
		}
		addr = addr.Unmap()
		f.prefixes = append(f.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return f
}

// Enabled reports whether filtering is active
func (f *Filter) Enabled() bool {
	return len(f.prefixes) > 0
}

// Count returns the number of allowed networks
func (f *Filter) Count() int {
	return len(f.prefixes)
}

// Allows reports whether ip may pass. A disabled filter allows everything.
func (f *Filter) Allows(ip netip.Addr) bool {
	if !f.Enabled() {
		return true
	}
	ip = ip.Unmap()
	for _, p := range f.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address
func ClientIP(r *http.Request) (netip.Addr, bool) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return ip.Unmap(), true
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return ip.Unmap(), true
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// Middleware rejects requests from addresses outside the allowed networks
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		ip, ok := ClientIP(r)
		if !ok {
			f.logger.Warn("could not parse client IP", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if !f.Allows(ip) {
			f.logger.Warn("access denied by IP filter", "ip", ip.String(), "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
