// Package netutil provides shared HTTP/network normalization helpers.
package netutil

import (
	"net"
	"net/http"
	"net/textproto"
	"strings"
)

var hopByHopHeaderNames = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// NormalizeHost lower-cases and strips ports/trailing dots from host values.
func NormalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return ""
	}

	if h, p, err := net.SplitHostPort(host); err == nil && p != "" {
		host = h
	} else if strings.Count(host, ":") == 1 {
		left, right, ok := strings.Cut(host, ":")
		if ok && isDigits(right) {
			host = left
		}
	}

	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return strings.TrimSuffix(host, ".")
}

// RemoveHopByHopHeaders strips hop-by-hop headers, including any listed in
// Connection, that must not be proxied.
func RemoveHopByHopHeaders(h http.Header) {
	if len(h) == 0 {
		return
	}
	for _, connectionValue := range h.Values("Connection") {
		for _, token := range strings.Split(connectionValue, ",") {
			if key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(token)); key != "" {
				h.Del(key)
			}
		}
	}
	for _, key := range hopByHopHeaderNames {
		h.Del(key)
	}
}

// RemoteIP returns the socket-observed client address of r without its port.
func RemoteIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// IsDNSLabel reports whether v is a single lower-case DNS label
// ([a-z0-9], inner hyphens allowed, at most 63 bytes).
func IsDNSLabel(v string) bool {
	if v == "" || len(v) > 63 {
		return false
	}
	if v[0] == '-' || v[len(v)-1] == '-' {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

// IsDigits reports whether v is a non-empty run of ASCII digits.
func IsDigits(v string) bool {
	return isDigits(v)
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
