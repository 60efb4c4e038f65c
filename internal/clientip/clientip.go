// Package clientip resolves the caller's IP address from a request,
// honoring the proxy headers trusted front door per the deployment
// contract: X-Forwarded-For first entry, then X-Real-IP, then the
// peer address. Shared by the rate limiter and the handlers that
// record a session's originating IP, since neither may import the
// other.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Of extracts the client IP from r, considering proxy headers.
// Operators must ensure these headers are set only by trusted proxies.
func Of(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
