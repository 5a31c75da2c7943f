// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "servgate"

// Route labels for dispatch_total.
const (
	RouteAPI        = "api"
	RouteDocs       = "docs"
	RouteTunnel     = "tunnel"
	RouteDescriptor = "descriptor"
	RouteSite       = "site"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing, so packages can be used without a registry in tests.
type Metrics struct {
	registry prometheus.Gatherer

	dispatch      *prometheus.CounterVec
	proxyErrors   prometheus.Counter
	apiRequests   *prometheus.CounterVec
	rateLimited   prometheus.Counter
	notifications *prometheus.CounterVec
	pendingTokens prometheus.Gauge
}

// New creates the collectors and registers them with reg. A fresh
// [prometheus.Registry] is used when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Inbound requests by dispatcher route.",
		}, []string{"route"}),
		proxyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_errors_total",
			Help:      "Upstream requests that failed before a response was received.",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Control API responses by endpoint and status type.",
		}, []string{"endpoint", "status"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Control API requests rejected by the rate limiter.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Webhook notifications by event and result.",
		}, []string{"event", "result"}),
		pendingTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_tokens",
			Help:      "Unverified tokens currently held in memory.",
		}),
	}
	reg.MustRegister(
		m.dispatch,
		m.proxyErrors,
		m.apiRequests,
		m.rateLimited,
		m.notifications,
		m.pendingTokens,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Dispatch(route string) {
	if m == nil {
		return
	}
	m.dispatch.WithLabelValues(route).Inc()
}

func (m *Metrics) ProxyError() {
	if m == nil {
		return
	}
	m.proxyErrors.Inc()
}

func (m *Metrics) APIRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(endpoint, status).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) Notification(event, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(event, result).Inc()
}

func (m *Metrics) SetPendingTokens(n int) {
	if m == nil {
		return
	}
	m.pendingTokens.Set(float64(n))
}
