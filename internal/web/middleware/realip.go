package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxySet is a set of trusted proxy networks.
type ProxySet []netip.Prefix

// ParseProxies parses CIDRs and single addresses. Invalid entries are
// logged and skipped.
func ParseProxies(entries []string) ProxySet {
	var set ProxySet
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			set = append(set, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "entry", e, "error", err)
			continue
		}
		set = append(set, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return set
}

// Contains reports whether addr belongs to a trusted network.
func (s ProxySet) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range s {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientAddr resolves the client address of r. Forwarding headers are only
// read when the connection comes from a trusted proxy. X-Forwarded-For is
// walked from the right, skipping trusted hops, so a client cannot prepend
// a forged address.
func (s ProxySet) ClientAddr(r *http.Request) (netip.Addr, bool) {
	remote, ok := parseAddr(r.RemoteAddr)
	if !ok || !s.Contains(remote) {
		return remote, ok
	}

	if rip, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return rip, true
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, ok := parseAddr(hops[i])
			if !ok {
				break
			}
			if !s.Contains(hop) || i == 0 {
				return hop, true
			}
		}
	}
	return remote, true
}

// TrustedRealIP rewrites RemoteAddr to the client address resolved from
// forwarding headers of trusted proxies. Requests from anywhere else keep
// their connection address.
func TrustedRealIP(trusted []string) func(http.Handler) http.Handler {
	set := ParseProxies(trusted)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(set) > 0 {
				if addr, ok := set.ClientAddr(r); ok {
					r.RemoteAddr = addr.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseAddr accepts "host:port" or a bare address.
func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
