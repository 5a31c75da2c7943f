// Package notify sends best-effort operator alerts about token and code
// events to a chat-style webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/koltyakov/servgate/internal/metrics"
)

// EventType names a registry or auth event.
type EventType string

const (
	TokenCreated  EventType = "token_created"
	TokenVerified EventType = "token_verified"
	CodeCreated   EventType = "code_created"
	CodeDeleted   EventType = "code_deleted"
)

// Embed colours.
const (
	ColorYellow = 16776960
	ColorGreen  = 65280
	ColorRed    = 16711680
)

// Event carries the details of one notification.
type Event struct {
	Type  EventType
	IP    string
	Token string
	Code  string
	Port  string
}

// Notifier dispatches events without blocking the caller.
type Notifier interface {
	Notify(Event)
	Close(ctx context.Context) error
}

// Embed is a single webhook message card.
type Embed struct {
	Title       string `json:"title"`
	Color       int    `json:"color"`
	Description string `json:"description"`
}

type payload struct {
	Embeds []Embed `json:"embeds"`
}

// EmbedFor renders e as a webhook card.
func EmbedFor(e Event) Embed {
	switch e.Type {
	case TokenCreated:
		return Embed{
			Title:       "New verification token has been created",
			Color:       ColorYellow,
			Description: fmt.Sprintf("`%s` by `%s`", e.Token, e.IP),
		}
	case TokenVerified:
		return Embed{
			Title:       "New token has been added",
			Color:       ColorGreen,
			Description: fmt.Sprintf("`%s` by `%s`", e.Token, e.IP),
		}
	case CodeCreated:
		return Embed{
			Title:       "New code has been added",
			Color:       ColorGreen,
			Description: fmt.Sprintf("`%s` at port `%s` by `%s`", e.Code, e.Port, e.IP),
		}
	case CodeDeleted:
		return Embed{
			Title:       "Code has been deleted",
			Color:       ColorRed,
			Description: fmt.Sprintf("`%s` at port `%s` by `%s`", e.Code, e.Port, e.IP),
		}
	}
	return Embed{Title: string(e.Type), Description: fmt.Sprintf("by `%s`", e.IP)}
}

// Webhook posts events to a URL in background goroutines.
type Webhook struct {
	url     string
	client  *http.Client
	log     *slog.Logger
	metrics *metrics.Metrics

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// WebhookOptions configures a Webhook.
type WebhookOptions struct {
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewWebhook returns a notifier that posts to url.
func NewWebhook(url string, opts WebhookOptions) *Webhook {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{url: url, client: client, log: logger, metrics: opts.Metrics}
}

// Notify schedules delivery of e and returns immediately. Events after Close
// are dropped.
func (w *Webhook) Notify(e Event) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.metrics.Notification(string(e.Type), "dropped")
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		if err := w.send(context.Background(), e); err != nil {
			w.log.Warn("notification failed", "event", e.Type, "err", err)
			w.metrics.Notification(string(e.Type), "error")
			return
		}
		w.metrics.Notification(string(e.Type), "ok")
	}()
}

func (w *Webhook) send(ctx context.Context, e Event) error {
	body, err := json.Marshal(payload{Embeds: []Embed{EmbedFor(e)}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// Close stops accepting events and waits for in-flight deliveries until ctx
// is done.
func (w *Webhook) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(Event) {}

func (Nop) Close(context.Context) error { return nil }

// Log writes events to the server log. It stands in for the webhook when none
// is configured, so the log becomes the out-of-band channel for pending tokens.
type Log struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewLog returns a Log notifier.
func NewLog(logger *slog.Logger, m *metrics.Metrics) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger, metrics: m}
}

func (l *Log) Notify(e Event) {
	embed := EmbedFor(e)
	l.log.Info(embed.Title, "event", e.Type, "detail", embed.Description)
	l.metrics.Notification(string(e.Type), "logged")
}

func (l *Log) Close(context.Context) error { return nil }

// New returns a webhook notifier for url, or a [Log] notifier when url is
// empty.
func New(url string, opts WebhookOptions) Notifier {
	if url == "" {
		return NewLog(opts.Logger, opts.Metrics)
	}
	return NewWebhook(url, opts)
}
