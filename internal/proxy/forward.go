package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/koltyakov/servgate/internal/metrics"
)

// RequestIDHeader is set on upstream requests that arrive without one.
const RequestIDHeader = "X-Request-Id"

// Forwarder streams requests to upstreams. Failures are never retried.
type Forwarder struct {
	transport http.RoundTripper
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// Options configures a Forwarder.
type Options struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// NewForwarder returns a Forwarder. A transport tuned for local upstreams is
// used when opts.Transport is nil.
func NewForwarder(opts Options) *Forwarder {
	transport := opts.Transport
	if transport == nil {
		transport = newTransport()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{transport: transport, log: logger, metrics: opts.Metrics}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Forward sends r to dest and copies the upstream response to w. The
// upstream call is bound to r's context, so it is torn down when the client
// goes away.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, dest *url.URL) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	publicScheme := "http"
	if r.TLS != nil {
		publicScheme = "https"
	}
	publicHost := r.Host

	rp := &httputil.ReverseProxy{
		Transport:     f.transport,
		FlushInterval: -1,
		Rewrite: func(pr *httputil.ProxyRequest) {
			out := Build(pr.In, dest)
			out.Header.Set(RequestIDHeader, requestID)
			pr.Out.Method = out.Method
			pr.Out.URL = out.URL
			pr.Out.Host = out.Host
			pr.Out.Header = out.Header
		},
		ModifyResponse: func(resp *http.Response) error {
			if loc := resp.Header.Get("Location"); loc != "" {
				resp.Header.Set("Location", RewriteLocation(loc, dest, publicScheme, publicHost))
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			if errors.Is(err, context.Canceled) {
				f.log.Debug("client went away", "host", publicHost, "upstream", dest.Host, "request_id", requestID)
				return
			}
			f.metrics.ProxyError()
			f.log.Warn("upstream request failed", "host", publicHost, "upstream", dest.Host, "request_id", requestID, "err", err)
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
		ErrorLog: slog.NewLogLogger(f.log.Handler(), slog.LevelDebug),
	}
	rp.ServeHTTP(w, r)
}
