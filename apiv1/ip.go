package apiv1

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

var localPrefixes = func() []netip.Prefix {
	cidrs := []string{"127.0.0.0/8", "10.0.0.0/8", "169.254.0.0/16", "172.16.0.0/12", "192.168.0.0/16", "::1/128", "fc00::/7"}
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefixes = append(prefixes, netip.MustParsePrefix(cidr))
	}
	return prefixes
}()

// isLocal returns true if an address is loopback, link-local, or in a
// private range, and so can't be the client's public address.
func isLocal(addr string) bool {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, prefix := range localPrefixes {
		if prefix.Contains(a) {
			return true
		}
	}
	return false
}

// remoteAddr returns the IP portion of the request's RemoteAddr.
func remoteAddr(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// clientIP returns a best guess at the IP a request came from, preferring
// the first public address a proxy forwarded.
func clientIP(r *http.Request) string {
	realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip"))
	forwardedFor := r.Header.Get("X-Forwarded-For")

	if realIP == "" && forwardedFor == "" {
		return remoteAddr(r)
	}

	for _, addr := range strings.Split(forwardedFor, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" || isLocal(addr) {
			continue
		}
		return addr
	}
	if realIP != "" {
		return realIP
	}
	return remoteAddr(r)
}
