// Package api implements the token-gated control API used to issue tokens
// and manage public codes.
package api

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/koltyakov/servgate/internal/config"
	"github.com/koltyakov/servgate/internal/domain"
	"github.com/koltyakov/servgate/internal/metrics"
	"github.com/koltyakov/servgate/internal/notify"
	"github.com/koltyakov/servgate/internal/pending"
	"github.com/koltyakov/servgate/internal/status"
)

// Store is the registry persistence the API needs.
type Store interface {
	InsertCode(ctx context.Context, code, port string) (domain.Code, error)
	GetTarget(ctx context.Context, code string) (domain.Target, error)
	DeleteCode(ctx context.Context, code string) (bool, error)
	ListCodes(ctx context.Context) ([]string, error)
	InsertToken(ctx context.Context, token, ip string) (domain.Token, error)
	GetToken(ctx context.Context, token string) (domain.Token, error)
}

// Options wires the API's collaborators.
type Options struct {
	Config   config.ServerConfig
	Store    Store
	Pending  *pending.Cache
	Notifier notify.Notifier
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Handler serves the control API.
type Handler struct {
	cfg      config.ServerConfig
	store    Store
	pending  *pending.Cache
	notifier notify.Notifier
	log      *slog.Logger
	metrics  *metrics.Metrics
	render   status.Renderer
	limiter  *rateLimiter
	mux      *http.ServeMux
}

// New builds the control API handler.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	cache := opts.Pending
	if cache == nil {
		cache = pending.New(opts.Config.PendingTTL)
	}
	limit := opts.Config.RateLimit
	if limit <= 0 {
		limit = 20
	}
	period := opts.Config.RateWindow
	if period <= 0 {
		period = time.Hour
	}
	h := &Handler{
		cfg:      opts.Config,
		store:    opts.Store,
		pending:  cache,
		notifier: notifier,
		log:      logger,
		metrics:  opts.Metrics,
		render:   status.Renderer{DocsBase: opts.Config.DocsURL("")},
		limiter:  newRateLimiter(limit, period),
		mux:      http.NewServeMux(),
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.mux.Handle("POST /token/create", h.withBody(http.HandlerFunc(h.handleTokenCreate)))
	h.mux.Handle("POST /token/verify", h.withBody(http.HandlerFunc(h.handleTokenVerify)))
	h.mux.Handle("POST /code/create", h.withBody(h.requireToken(http.HandlerFunc(h.handleCodeCreate))))
	h.mux.Handle("POST /code/list", h.withBody(h.requireToken(http.HandlerFunc(h.handleCodeList))))
	h.mux.Handle("POST /code/delete", h.withBody(h.requireToken(http.HandlerFunc(h.handleCodeDelete))))
	h.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.write(w, r, status.NotFoundException, nil)
	})
}

// ServeHTTP applies the rate limiter before any other processing.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d := h.limiter.allow(clientIP(r))
	setRateLimitHeaders(w.Header(), d)
	if !d.allowed {
		h.metrics.RateLimited()
		h.log.Info("control api rate limited", "ip", clientIP(r), "path", r.URL.Path)
		h.write(w, r, status.TooManyRequestsException, nil)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// Maintain evicts expired limiter windows and pending tokens. It is called
// by the server janitor.
func (h *Handler) Maintain() {
	h.limiter.cleanup()
	h.pending.DeleteExpired()
	h.metrics.SetPendingTokens(h.pending.Len())
}

func setRateLimitHeaders(hdr http.Header, d decision) {
	hdr.Set("RateLimit-Limit", strconv.Itoa(d.limit))
	hdr.Set("RateLimit-Remaining", strconv.Itoa(d.remaining))
	hdr.Set("RateLimit-Reset", strconv.Itoa(int(math.Ceil(d.reset.Seconds()))))
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, k status.Kind, extra status.Extra) {
	endpoint := r.Pattern
	if endpoint == "" || endpoint == "/" {
		endpoint = "unknown"
	}
	h.metrics.APIRequest(endpoint, k.String())
	h.render.Write(w, k, extra)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.log.Error("control api failure", "op", op, "path", r.URL.Path, "err", err)
	h.write(w, r, status.InternalException, nil)
}
