package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP resolves the address a hit is attributed to. When X-Forwarded-For
// is present its first entry wins, even when that entry is empty; otherwise
// the connection address is used. A port is stripped either way. The edge
// proxy is trusted, so a client can spoof the header when the service is
// reachable directly.
func ClientIP(remoteAddr, forwardedFor string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return stripPort(strings.TrimSpace(first))
	}
	return stripPort(strings.TrimSpace(remoteAddr))
}

// stripPort turns "1.2.3.4:80" and "[2001:db8::1]:443" into bare addresses
// and drops the brackets of "[2001:db8::1]". Anything else is returned as is.
func stripPort(addr string) string {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().String()
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}

// KeyByClientIP is an httprate.KeyFunc that limits by the address hits are
// attributed to, not the load balancer in front of the service
func KeyByClientIP(r *http.Request) (string, error) {
	return ClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For")), nil
}
