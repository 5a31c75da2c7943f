// Package gateway dispatches inbound requests by Host header to the control
// API, the docs site, code tunnels, named descriptor tunnels or the main site.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/koltyakov/servgate/internal/config"
	"github.com/koltyakov/servgate/internal/descriptor"
	"github.com/koltyakov/servgate/internal/domain"
	"github.com/koltyakov/servgate/internal/metrics"
	"github.com/koltyakov/servgate/internal/netutil"
	"github.com/koltyakov/servgate/internal/status"
)

// Route is a dispatcher branch.
type Route int

const (
	RouteSite Route = iota
	RouteAPI
	RouteDocs
	RouteTunnel
	RouteDescriptor
)

func (r Route) String() string {
	switch r {
	case RouteAPI:
		return metrics.RouteAPI
	case RouteDocs:
		return metrics.RouteDocs
	case RouteTunnel:
		return metrics.RouteTunnel
	case RouteDescriptor:
		return metrics.RouteDescriptor
	}
	return metrics.RouteSite
}

// Match is the classification of one Host header.
type Match struct {
	Route Route
	// Code is set for RouteTunnel.
	Code string
	// Name is set for RouteDescriptor.
	Name string
}

// Classify maps host onto a route, in precedence order: control API, docs,
// code tunnel, named descriptor, main site.
func Classify(cfg config.ServerConfig, host string) Match {
	host = netutil.NormalizeHost(host)
	switch {
	case host == "":
		return Match{Route: RouteSite}
	case host == cfg.APIHost():
		return Match{Route: RouteAPI}
	case host == cfg.DocsHost():
		return Match{Route: RouteDocs}
	}
	// Codes may contain dots, so everything before the suffix is the code.
	if code, ok := strings.CutSuffix(host, cfg.ServSuffix()); ok && code != "" {
		return Match{Route: RouteTunnel, Code: code}
	}
	if name, ok := strings.CutSuffix(host, "."+cfg.Host); ok && netutil.IsDNSLabel(name) {
		return Match{Route: RouteDescriptor, Name: name}
	}
	return Match{Route: RouteSite}
}

// TargetStore resolves codes to targets.
type TargetStore interface {
	GetTarget(ctx context.Context, code string) (domain.Target, error)
}

// DescriptorLoader resolves names to descriptors.
type DescriptorLoader interface {
	Load(name string) (descriptor.Descriptor, error)
}

// Forwarder proxies a request to a destination.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, dest *url.URL)
}

// Options wires the dispatcher's collaborators. Docs and Site default to
// static handlers over cfg.DocsDir and cfg.SiteDir.
type Options struct {
	Config      config.ServerConfig
	API         http.Handler
	Docs        http.Handler
	Site        http.Handler
	Store       TargetStore
	Descriptors DescriptorLoader
	Forwarder   Forwarder
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Dispatcher is the public HTTP entry point. It holds no per-request state.
type Dispatcher struct {
	cfg         config.ServerConfig
	api         http.Handler
	docs        http.Handler
	site        http.Handler
	store       TargetStore
	descriptors DescriptorLoader
	forwarder   Forwarder
	render      status.Renderer
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// New builds a Dispatcher.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	docs := opts.Docs
	if docs == nil {
		docs = newStaticHandler(opts.Config.DocsDir, staticOptions{HTMLExtension: true})
	}
	site := opts.Site
	if site == nil {
		site = newStaticHandler(opts.Config.SiteDir, staticOptions{SPA: true})
	}
	descriptors := opts.Descriptors
	if descriptors == nil {
		descriptors = descriptor.NewLoader(opts.Config.DescriptorDir)
	}
	api := opts.API
	if api == nil {
		api = http.NotFoundHandler()
	}
	return &Dispatcher{
		cfg:         opts.Config,
		api:         api,
		docs:        docs,
		site:        site,
		store:       opts.Store,
		descriptors: descriptors,
		forwarder:   opts.Forwarder,
		render:      status.Renderer{DocsBase: opts.Config.DocsURL("")},
		log:         logger,
		metrics:     opts.Metrics,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := Classify(d.cfg, r.Host)
	d.metrics.Dispatch(m.Route.String())

	switch m.Route {
	case RouteAPI:
		d.api.ServeHTTP(w, r)
	case RouteDocs:
		d.docs.ServeHTTP(w, r)
	case RouteTunnel:
		d.serveTunnel(w, r, m.Code)
	case RouteDescriptor:
		d.serveDescriptor(w, r, m.Name)
	default:
		d.site.ServeHTTP(w, r)
	}
}

func (d *Dispatcher) serveTunnel(w http.ResponseWriter, r *http.Request, code string) {
	target, err := d.store.GetTarget(r.Context(), code)
	if errors.Is(err, domain.ErrCodeNotFound) {
		d.log.Debug("unknown code", "host", r.Host, "code", code)
		http.Redirect(w, r, d.cfg.SiteURL("/404"), http.StatusFound)
		return
	}
	if err != nil {
		d.log.Error("code lookup failed", "host", r.Host, "code", code, "err", &domain.RouteError{Host: r.Host, Op: "lookup", Err: err})
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	port := target.LocalPort()
	if !netutil.IsDigits(port) {
		d.log.Warn("code has unusable port", "code", code, "port", target.Port)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	d.forwarder.Forward(w, r, &url.URL{Scheme: "http", Host: "127.0.0.1:" + port})
}

func (d *Dispatcher) serveDescriptor(w http.ResponseWriter, r *http.Request, name string) {
	desc, err := d.descriptors.Load(name)
	if err == nil {
		var dest *url.URL
		if dest, err = desc.Destination(); err == nil {
			d.forwarder.Forward(w, r, dest)
			return
		}
	}
	routeErr := &domain.RouteError{Host: r.Host, Op: "descriptor", Err: err}
	var parseErr *descriptor.ParseError
	switch {
	case errors.Is(err, domain.ErrDescriptorNotFound):
		d.log.Debug("no descriptor", "host", r.Host, "name", name)
	case errors.As(err, &parseErr), errors.Is(err, domain.ErrInvalidDescriptor):
		d.log.Warn("unusable descriptor", "host", r.Host, "name", name, "err", routeErr)
	default:
		d.log.Error("descriptor load failed", "host", r.Host, "name", name, "err", routeErr)
	}
	d.render.Write(w, status.NotFoundException, status.Extra{"redirect": d.cfg.SiteURL("/")})
}
