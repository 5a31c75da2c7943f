package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/koltyakov/servgate/internal/api"
	"github.com/koltyakov/servgate/internal/config"
	"github.com/koltyakov/servgate/internal/debughttp"
	"github.com/koltyakov/servgate/internal/gateway"
	"github.com/koltyakov/servgate/internal/metrics"
	"github.com/koltyakov/servgate/internal/notify"
	"github.com/koltyakov/servgate/internal/pending"
	"github.com/koltyakov/servgate/internal/proxy"
	"github.com/koltyakov/servgate/internal/store/sqlite"
)

const (
	httpReadHeaderTimeout = 10 * time.Second
	httpIdleTimeout       = 120 * time.Second
	httpMaxHeaderBytes    = 1 << 20
	shutdownTimeout       = 5 * time.Second
	notifierDrainTimeout  = 15 * time.Second
)

// Server owns the public listeners and every component behind them.
type Server struct {
	cfg      config.ServerConfig
	store    *sqlite.Store
	log      *slog.Logger
	metrics  *metrics.Metrics
	pending  *pending.Cache
	notifier notify.Notifier
	api      *api.Handler
	gateway  *gateway.Dispatcher

	mu    sync.Mutex
	addrs map[string]net.Addr
	ready chan struct{}
}

func New(cfg config.ServerConfig, store *sqlite.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.New(nil)
	cache := pending.New(cfg.PendingTTL)
	notifier := notify.New(cfg.WebhookURL, notify.WebhookOptions{
		Timeout: cfg.NotifyTimeout,
		Logger:  logger,
		Metrics: m,
	})
	apiHandler := api.New(api.Options{
		Config:   cfg,
		Store:    store,
		Pending:  cache,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  m,
	})
	forwarder := proxy.NewForwarder(proxy.Options{Logger: logger, Metrics: m})
	dispatcher := gateway.New(gateway.Options{
		Config:    cfg,
		API:       apiHandler,
		Store:     store,
		Forwarder: forwarder,
		Logger:    logger,
		Metrics:   m,
	})
	return &Server{
		cfg:      cfg,
		store:    store,
		log:      logger,
		metrics:  m,
		pending:  cache,
		notifier: notifier,
		api:      apiHandler,
		gateway:  dispatcher,
		addrs:    map[string]net.Addr{},
		ready:    make(chan struct{}),
	}
}

// Handler is the public dispatcher served on the HTTP and HTTPS listeners.
func (s *Server) Handler() http.Handler { return s.gateway }

// Ready is closed once every listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address of the named listener ("http", "https",
// "http3" or "metrics"), or nil if it is not running.
func (s *Server) Addr(name string) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrs[name]
}

func (s *Server) setAddr(name string, addr net.Addr) {
	s.mu.Lock()
	s.addrs[name] = addr
	s.mu.Unlock()
}

func (s *Server) listenAddr(port int) string {
	return net.JoinHostPort(s.cfg.ListenIP, strconv.Itoa(port))
}

func newHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: httpReadHeaderTimeout,
		IdleTimeout:       httpIdleTimeout,
		MaxHeaderBytes:    httpMaxHeaderBytes,
	}
}

func shutdownServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// redirectHandler sends plain HTTP callers to the same host and path on HTTPS.
func (s *Server) redirectHandler() http.Handler {
	port := ""
	if s.cfg.HTTPSPort != 443 {
		port = ":" + strconv.Itoa(s.cfg.HTTPSPort)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if host == "" {
			host = s.cfg.Host
		}
		http.Redirect(w, r, "https://"+host+port+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
}

func (s *Server) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	if s.cfg.Pprof {
		debughttp.Register(mux)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Ping(r.Context()); err != nil {
			s.log.Warn("health check failed", "err", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
