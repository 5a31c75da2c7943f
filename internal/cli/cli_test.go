package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koltyakov/servgate/internal/api"
	"github.com/koltyakov/servgate/internal/client/settings"
	"github.com/koltyakov/servgate/internal/config"
	"github.com/koltyakov/servgate/internal/log"
	"github.com/koltyakov/servgate/internal/notify"
	"github.com/koltyakov/servgate/internal/pending"
	"github.com/koltyakov/servgate/internal/store/sqlite"
)

func TestParseEnvAssignment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line      string
		key, want string
		ok        bool
	}{
		{line: "SERVGATE_HOST=example.com", key: "SERVGATE_HOST", want: "example.com", ok: true},
		{line: "export SERVGATE_HTTPS=false", key: "SERVGATE_HTTPS", want: "false", ok: true},
		{line: `SERVGATE_WEBHOOK_URL="https://hooks.example.com/x"`, key: "SERVGATE_WEBHOOK_URL", want: "https://hooks.example.com/x", ok: true},
		{line: "SERVGATE_LOG_LEVEL='debug'", key: "SERVGATE_LOG_LEVEL", want: "debug", ok: true},
		{line: "  # comment", ok: false},
		{line: "", ok: false},
		{line: "NOEQUALS", ok: false},
		{line: "BAD KEY=1", ok: false},
	}
	for _, tt := range tests {
		key, value, ok := parseEnvAssignment(tt.line)
		if ok != tt.ok {
			t.Fatalf("%q: ok = %v, want %v", tt.line, ok, tt.ok)
		}
		if ok && (key != tt.key || value != tt.want) {
			t.Fatalf("%q: got %q=%q, want %q=%q", tt.line, key, value, tt.key, tt.want)
		}
	}
}

func TestLoadEnvFromDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "SERVGATE_CODE_LENGTH=12\r\nSERVGATE_LOG_LEVEL=debug\nOTHER_VAR=ignored\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVGATE_CODE_LENGTH", "")
	t.Setenv("SERVGATE_LOG_LEVEL", "warn")
	t.Setenv("OTHER_VAR", "")

	loadEnvFromDotEnv(path)

	if got := os.Getenv("SERVGATE_CODE_LENGTH"); got != "12" {
		t.Fatalf("expected value from .env, got %q", got)
	}
	if got := os.Getenv("SERVGATE_LOG_LEVEL"); got != "warn" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
	if got := os.Getenv("OTHER_VAR"); got != "" {
		t.Fatalf("expected non-prefixed key to be skipped, got %q", got)
	}
}

func TestRunVersionAndUsage(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"version"}, &out, &errOut); code != 0 {
		t.Fatalf("version exit %d", code)
	}
	if !strings.HasPrefix(out.String(), "servgate ") {
		t.Fatalf("unexpected version output %q", out.String())
	}

	out.Reset()
	if code := run(context.Background(), []string{"help"}, &out, &errOut); code != 0 {
		t.Fatalf("help exit %d", code)
	}
	if !strings.Contains(out.String(), "servgate code create") {
		t.Fatalf("usage missing commands: %q", out.String())
	}

	if code := run(context.Background(), []string{"bogus"}, &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2 for unknown command, got %d", code)
	}
	if code := run(context.Background(), nil, &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2 without args, got %d", code)
	}
}

type captureNotifier struct {
	mu     sync.Mutex
	tokens []string
}

func (n *captureNotifier) Notify(e notify.Event) {
	if e.Type != notify.TokenCreated {
		return
	}
	n.mu.Lock()
	n.tokens = append(n.tokens, e.Token)
	n.mu.Unlock()
}

func (n *captureNotifier) Close(context.Context) error { return nil }

func (n *captureNotifier) last(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.tokens) == 0 {
		t.Fatal("no pending token announced")
	}
	return n.tokens[len(n.tokens)-1]
}

func isolateClientEnv(t *testing.T) string {
	t.Helper()
	credentials := filepath.Join(t.TempDir(), "credentials.json")
	t.Setenv(settings.PathEnv, credentials)
	t.Setenv("SERVGATE_API_URL", "")
	t.Setenv("SERVGATE_TOKEN", "")
	return credentials
}

func TestClientCommandsEndToEnd(t *testing.T) {
	credentials := isolateClientEnv(t)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "cli.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	n := &captureNotifier{}
	cfg := config.ServerConfig{
		Host:          "example.com",
		HTTPSEnabled:  true,
		HTTPSPort:     443,
		SubdomainServ: "serv",
		SubdomainAPI:  "api",
		SubdomainDocs: "docs",
		RateLimit:     1000,
		RateWindow:    time.Hour,
		PendingTTL:    time.Minute,
		CodeLength:    32,
		MaxBodyBytes:  64 * 1024,
	}
	srv := httptest.NewServer(api.New(api.Options{
		Config:   cfg,
		Store:    store,
		Pending:  pending.New(cfg.PendingTTL),
		Notifier: n,
		Logger:   log.Discard(),
	}))
	defer srv.Close()
	ctx := context.Background()

	var out, errOut bytes.Buffer
	if code := run(ctx, []string{"token", "request", "--api", srv.URL}, &out, &errOut); code != 0 {
		t.Fatalf("token request exit %d: %s", code, errOut.String())
	}

	out.Reset()
	if code := run(ctx, []string{"token", "verify", "--api", srv.URL, n.last(t)}, &out, &errOut); code != 0 {
		t.Fatalf("token verify exit %d: %s", code, errOut.String())
	}
	saved, err := settings.Load(credentials)
	if err != nil {
		t.Fatalf("expected saved credentials: %v", err)
	}
	if saved.APIURL != srv.URL || !strings.Contains(out.String(), saved.Token) {
		t.Fatalf("unexpected saved credentials %+v / output %q", saved, out.String())
	}

	// Later commands pick the API URL and token up from the saved file.
	out.Reset()
	if code := run(ctx, []string{"code", "create", "--code", "demo", "3000"}, &out, &errOut); code != 0 {
		t.Fatalf("code create exit %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "https://demo.serv.example.com") {
		t.Fatalf("unexpected create output %q", out.String())
	}

	out.Reset()
	if code := run(ctx, []string{"code", "list"}, &out, &errOut); code != 0 {
		t.Fatalf("code list exit %d: %s", code, errOut.String())
	}
	if strings.TrimSpace(out.String()) != "demo" {
		t.Fatalf("unexpected list output %q", out.String())
	}

	if code := run(ctx, []string{"code", "delete", "demo"}, &out, &errOut); code != 0 {
		t.Fatalf("code delete exit %d: %s", code, errOut.String())
	}
	errOut.Reset()
	if code := run(ctx, []string{"code", "delete", "demo"}, &out, &errOut); code != 1 {
		t.Fatalf("expected exit 1 deleting a missing code, got %d", code)
	}
	if !strings.Contains(errOut.String(), "CodeNotFoundException") {
		t.Fatalf("expected CodeNotFoundException, got %q", errOut.String())
	}
}

func TestCodeCommandsRequireToken(t *testing.T) {
	isolateClientEnv(t)
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"code", "list", "--api", "http://127.0.0.1:1"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit 2 without token, got %d", code)
	}
	if !strings.Contains(errOut.String(), "missing --token") {
		t.Fatalf("unexpected error output %q", errOut.String())
	}
}

func TestSavedTokenNotSentToOtherAPI(t *testing.T) {
	credentials := isolateClientEnv(t)
	if err := settings.Save(credentials, settings.Credentials{APIURL: "https://api.example.com", Token: "secret"}); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"code", "list", "--api", "https://api.other.org"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("expected missing token for a different api, got %d (%s)", code, errOut.String())
	}
}

func TestTokenAdminCommands(t *testing.T) {
	t.Setenv("SERVGATE_DB_PATH", "")
	dbPath := filepath.Join(t.TempDir(), "admin.db")
	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	tok := strings.Repeat("a", 40)
	if _, err := store.InsertToken(context.Background(), tok, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()
	ctx := context.Background()

	var out, errOut bytes.Buffer
	if code := run(ctx, []string{"token", "list", "--db", dbPath}, &out, &errOut); code != 0 {
		t.Fatalf("token list exit %d: %s", code, errOut.String())
	}
	if strings.Contains(out.String(), tok) || !strings.Contains(out.String(), "aaaaaaaa...") {
		t.Fatalf("expected masked token in %q", out.String())
	}
	if !strings.Contains(out.String(), "10.0.0.1") || !strings.Contains(out.String(), "authorized=true") {
		t.Fatalf("unexpected list output %q", out.String())
	}

	out.Reset()
	if code := run(ctx, []string{"token", "list", "--db", dbPath, "--show"}, &out, &errOut); code != 0 {
		t.Fatal("token list --show failed")
	}
	if !strings.Contains(out.String(), tok) {
		t.Fatalf("expected full token with --show, got %q", out.String())
	}

	if code := run(ctx, []string{"token", "revoke", "--db", dbPath, tok}, &out, &errOut); code != 0 {
		t.Fatalf("token revoke exit %d: %s", code, errOut.String())
	}
	if code := run(ctx, []string{"token", "revoke", "--db", dbPath, tok}, &out, &errOut); code != 1 {
		t.Fatalf("expected exit 1 revoking twice, got %d", code)
	}
}
