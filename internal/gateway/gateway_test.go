package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/koltyakov/servgate/internal/config"
	"github.com/koltyakov/servgate/internal/descriptor"
	"github.com/koltyakov/servgate/internal/domain"
	"github.com/koltyakov/servgate/internal/log"
	"github.com/koltyakov/servgate/internal/status"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:          "example.com",
		HTTPSEnabled:  true,
		HTTPPort:      80,
		HTTPSPort:     443,
		SubdomainServ: "serv",
		SubdomainAPI:  "api",
		SubdomainDocs: "docs",
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cases := []struct {
		host string
		want Match
	}{
		{"api.example.com", Match{Route: RouteAPI}},
		{"API.Example.com:8443", Match{Route: RouteAPI}},
		{"docs.example.com", Match{Route: RouteDocs}},
		{"abc.serv.example.com", Match{Route: RouteTunnel, Code: "abc"}},
		{"a.b.c.serv.example.com", Match{Route: RouteTunnel, Code: "a.b.c"}},
		{"abc.serv.example.com.", Match{Route: RouteTunnel, Code: "abc"}},
		{"blog.example.com", Match{Route: RouteDescriptor, Name: "blog"}},
		{"serv.example.com", Match{Route: RouteDescriptor, Name: "serv"}},
		{"a.b.example.com", Match{Route: RouteSite}},
		{"example.com", Match{Route: RouteSite}},
		{"other.org", Match{Route: RouteSite}},
		{"", Match{Route: RouteSite}},
	}
	for _, tc := range cases {
		if got := Classify(cfg, tc.host); got != tc.want {
			t.Errorf("Classify(%q) = %+v, want %+v", tc.host, got, tc.want)
		}
	}
}

func TestClassifyCustomSubdomains(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SubdomainAPI = "control"
	cfg.SubdomainServ = "t"
	if got := Classify(cfg, "control.example.com"); got.Route != RouteAPI {
		t.Fatalf("expected api route, got %+v", got)
	}
	if got := Classify(cfg, "x.t.example.com"); got.Route != RouteTunnel || got.Code != "x" {
		t.Fatalf("expected tunnel route, got %+v", got)
	}
	if got := Classify(cfg, "api.example.com"); got.Route != RouteDescriptor {
		t.Fatalf("expected default api label to be a plain name, got %+v", got)
	}
}

type mapStore struct {
	targets map[string]string
	err     error
}

func (s mapStore) GetTarget(_ context.Context, code string) (domain.Target, error) {
	if s.err != nil {
		return domain.Target{}, s.err
	}
	port, ok := s.targets[code]
	if !ok {
		return domain.Target{}, domain.ErrCodeNotFound
	}
	return domain.Target{Port: port}, nil
}

type recordingForwarder struct {
	mu    sync.Mutex
	dests []string
}

func (f *recordingForwarder) Forward(w http.ResponseWriter, r *http.Request, dest *url.URL) {
	f.mu.Lock()
	f.dests = append(f.dests, dest.String())
	f.mu.Unlock()
	w.WriteHeader(http.StatusTeapot)
}

func (f *recordingForwarder) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dests...)
}

func newTestDispatcher(t *testing.T, store TargetStore, fwd Forwarder, descDir string) *Dispatcher {
	t.Helper()
	cfg := testConfig()
	cfg.DescriptorDir = descDir
	cfg.DocsDir = t.TempDir()
	cfg.SiteDir = t.TempDir()
	return New(Options{
		Config:    cfg,
		API:       http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "api") }),
		Store:     store,
		Forwarder: fwd,
		Logger:    log.Discard(),
	})
}

func serve(d http.Handler, method, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "http://"+host+path, nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	return rec
}

func TestTunnelMissRedirectsWithoutForwarding(t *testing.T) {
	t.Parallel()

	fwd := &recordingForwarder{}
	d := newTestDispatcher(t, mapStore{targets: map[string]string{}}, fwd, t.TempDir())

	for _, code := range []string{"abc", "a.b", "zzz"} {
		rec := serve(d, http.MethodGet, code+".serv.example.com", "/x")
		if rec.Code != http.StatusFound {
			t.Fatalf("%s: expected 302, got %d", code, rec.Code)
		}
		if got := rec.Header().Get("Location"); got != "https://example.com/404" {
			t.Fatalf("%s: location = %q", code, got)
		}
	}
	if len(fwd.calls()) != 0 {
		t.Fatalf("expected no upstream attempts, got %v", fwd.calls())
	}
}

func TestTunnelHitForwardsToLocalPort(t *testing.T) {
	t.Parallel()

	fwd := &recordingForwarder{}
	store := mapStore{targets: map[string]string{"abc": "8080", "a.b": "3000.1", "bad": "http"}}
	d := newTestDispatcher(t, store, fwd, t.TempDir())

	if rec := serve(d, http.MethodGet, "abc.serv.example.com", "/"); rec.Code != http.StatusTeapot {
		t.Fatalf("expected forwarder to handle request, got %d", rec.Code)
	}
	serve(d, http.MethodGet, "a.b.serv.example.com", "/")
	if rec := serve(d, http.MethodGet, "bad.serv.example.com", "/"); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for unusable port, got %d", rec.Code)
	}

	got := fwd.calls()
	want := []string{"http://127.0.0.1:8080", "http://127.0.0.1:3000"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTunnelStoreFailureIsInternalError(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, mapStore{err: errors.New("disk")}, &recordingForwarder{}, t.TempDir())
	if rec := serve(d, http.MethodGet, "abc.serv.example.com", "/"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestDescriptorRoutes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blog.json"), []byte(`{"hostname":"10.1.1.1","port":8443,"https":true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("ip: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "empty.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	fwd := &recordingForwarder{}
	d := newTestDispatcher(t, mapStore{}, fwd, dir)

	if rec := serve(d, http.MethodGet, "blog.example.com", "/"); rec.Code != http.StatusTeapot {
		t.Fatalf("expected forward, got %d", rec.Code)
	}
	if got := fwd.calls(); len(got) != 1 || got[0] != "https://10.1.1.1:8443" {
		t.Fatalf("unexpected destinations %v", got)
	}

	for _, name := range []string{"missing", "broken", "empty"} {
		rec := serve(d, http.MethodGet, name+".example.com", "/")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", name, rec.Code)
		}
		kind, _, extra, err := status.Decode(rec.Body.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		if kind != status.NotFoundException {
			t.Fatalf("%s: expected NotFoundException, got %s", name, kind)
		}
		var redirect string
		_ = json.Unmarshal(extra["redirect"], &redirect)
		if redirect != "https://example.com/" {
			t.Fatalf("%s: redirect = %q", name, redirect)
		}
	}
	if len(fwd.calls()) != 1 {
		t.Fatal("expected failed descriptors to never forward")
	}
}

func TestAPIAndStaticRoutes(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.DocsDir = t.TempDir()
	cfg.SiteDir = t.TempDir()
	mustWrite(t, filepath.Join(cfg.DocsDir, "status", "CodeCreated.html"), "code created docs")
	mustWrite(t, filepath.Join(cfg.SiteDir, "index.html"), "main app")
	mustWrite(t, filepath.Join(cfg.SiteDir, "app.js"), "console.log(1)")

	d := New(Options{
		Config:    cfg,
		API:       http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "api") }),
		Store:     mapStore{},
		Forwarder: &recordingForwarder{},
		Logger:    log.Discard(),
	})

	if rec := serve(d, http.MethodPost, "api.example.com", "/code/list"); rec.Body.String() != "api" {
		t.Fatalf("expected api handler, got %q", rec.Body.String())
	}
	if rec := serve(d, http.MethodGet, "docs.example.com", "/status/CodeCreated"); !strings.Contains(rec.Body.String(), "code created docs") {
		t.Fatalf("expected docs page via .html fallback, got %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(d, http.MethodGet, "example.com", "/app.js"); rec.Body.String() != "console.log(1)" {
		t.Fatalf("expected static asset, got %q", rec.Body.String())
	}
	if rec := serve(d, http.MethodGet, "example.com", "/dashboard/deep"); !strings.Contains(rec.Body.String(), "main app") {
		t.Fatalf("expected SPA fallback, got %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(d, http.MethodGet, "a.b.example.com", "/404"); !strings.Contains(rec.Body.String(), "main app") {
		t.Fatalf("expected unmatched host to reach main site, got %q", rec.Body.String())
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

var _ DescriptorLoader = (*descriptor.Loader)(nil)
