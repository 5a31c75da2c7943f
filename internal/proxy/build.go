// Package proxy forwards public requests to a resolved upstream.
package proxy

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/koltyakov/servgate/internal/netutil"
)

// OriginIPHeader carries the real client address to upstreams. It is written
// under its raw lower-case key.
const OriginIPHeader = "origin_ip"

// Outbound describes the upstream request derived from an inbound one. The
// body is streamed separately and is not part of the description.
type Outbound struct {
	Method string
	URL    *url.URL
	Host   string
	Header http.Header
}

// Build derives the outbound request for in towards dest without touching the
// network. Path and query come from in, joined under any base path of dest.
func Build(in *http.Request, dest *url.URL) Outbound {
	out := Outbound{
		Method: in.Method,
		URL: &url.URL{
			Scheme: dest.Scheme,
			Host:   dest.Host,
		},
		Host:   dest.Host,
		Header: in.Header.Clone(),
	}
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.URL.Path, out.URL.RawPath = joinURLPath(dest, in.URL)
	switch {
	case dest.RawQuery == "":
		out.URL.RawQuery = in.URL.RawQuery
	case in.URL.RawQuery == "":
		out.URL.RawQuery = dest.RawQuery
	default:
		out.URL.RawQuery = dest.RawQuery + "&" + in.URL.RawQuery
	}

	upgrade := upgradeType(in.Header)
	netutil.RemoveHopByHopHeaders(out.Header)
	if upgrade != "" {
		out.Header.Set("Connection", "Upgrade")
		out.Header.Set("Upgrade", upgrade)
	}
	deleteHeaderCI(out.Header, "Host")

	clientIP := netutil.RemoteIP(in)
	originIP := strings.TrimSpace(in.Header.Get(OriginIPHeader))
	if originIP == "" {
		originIP = clientIP
	}
	deleteHeaderCI(out.Header, OriginIPHeader)
	if originIP != "" {
		out.Header[OriginIPHeader] = []string{originIP}
	}

	injectForwardedFor(out.Header, clientIP)
	injectForwardedProxyHeaders(out.Header, in)
	return out
}

// RewriteLocation maps an absolute redirect that points at the upstream back
// onto the public origin. Relative and foreign locations are returned as-is.
func RewriteLocation(location string, dest *url.URL, publicScheme, publicHost string) string {
	if location == "" || dest == nil {
		return location
	}
	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return location
	}
	if !strings.EqualFold(u.Host, dest.Host) {
		return location
	}
	if u.Scheme != "" {
		u.Scheme = publicScheme
	}
	u.Host = publicHost
	if base := strings.TrimSuffix(dest.Path, "/"); base != "" && strings.HasPrefix(u.Path, base) {
		u.Path = strings.TrimPrefix(u.Path, base)
		u.RawPath = ""
		if u.Path == "" {
			u.Path = "/"
		}
	}
	return u.String()
}

func upgradeType(h http.Header) string {
	for _, v := range h.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return h.Get("Upgrade")
			}
		}
	}
	return ""
}

// injectForwardedFor appends ip to the X-Forwarded-For chain.
func injectForwardedFor(h http.Header, ip string) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return
	}
	existing := strings.TrimSpace(strings.Join(h.Values("X-Forwarded-For"), ", "))
	deleteHeaderCI(h, "X-Forwarded-For")
	if existing != "" {
		h["X-Forwarded-For"] = []string{existing + ", " + ip}
	} else {
		h["X-Forwarded-For"] = []string{ip}
	}
}

// injectForwardedProxyHeaders overwrites the proto/host/port headers. Public
// callers can spoof these, so every case variant is removed first.
func injectForwardedProxyHeaders(h http.Header, r *http.Request) {
	deleteHeaderCI(h, "Forwarded")
	deleteHeaderCI(h, "X-Forwarded-Proto")
	deleteHeaderCI(h, "X-Forwarded-Host")
	deleteHeaderCI(h, "X-Forwarded-Port")

	proto := "http"
	defaultPort := "80"
	if r.TLS != nil {
		proto = "https"
		defaultPort = "443"
	}
	h["X-Forwarded-Proto"] = []string{proto}

	host := strings.TrimSpace(r.Host)
	if host == "" {
		return
	}
	h["X-Forwarded-Host"] = []string{host}
	port := ""
	if _, p, err := net.SplitHostPort(host); err == nil {
		port = strings.TrimSpace(p)
	}
	if port == "" {
		port = defaultPort
	}
	h["X-Forwarded-Port"] = []string{port}
}

func deleteHeaderCI(h http.Header, key string) {
	for k := range h {
		if strings.EqualFold(k, key) {
			delete(h, k)
		}
	}
}

func joinURLPath(a, b *url.URL) (path, rawpath string) {
	if a.RawPath == "" && b.RawPath == "" {
		return singleJoiningSlash(a.Path, b.Path), ""
	}
	apath := a.EscapedPath()
	bpath := b.EscapedPath()

	aslash := strings.HasSuffix(apath, "/")
	bslash := strings.HasPrefix(bpath, "/")

	switch {
	case aslash && bslash:
		return a.Path + b.Path[1:], apath + bpath[1:]
	case !aslash && !bslash:
		return a.Path + "/" + b.Path, apath + "/" + bpath
	}
	return a.Path + b.Path, apath + bpath
}

func singleJoiningSlash(a, b string) string {
	if a == "" {
		if b == "" {
			return "/"
		}
		return b
	}
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
