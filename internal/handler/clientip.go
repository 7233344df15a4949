package handler

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address: the first X-Forwarded-For hop,
// then X-Real-IP, then the connection's remote host. Header values that are
// not IP addresses are skipped.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if usableIP(first) {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); usableIP(realIP) {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func usableIP(s string) bool {
	return net.ParseIP(s) != nil
}
