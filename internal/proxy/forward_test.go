package proxy

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koltyakov/servgate/internal/log"
)

func newTestForwarder() *Forwarder {
	return NewForwarder(Options{Logger: log.Discard()})
}

// gatewayFor returns a public-facing test server that forwards every request
// to dest.
func gatewayFor(t *testing.T, dest *url.URL) *httptest.Server {
	t.Helper()
	f := newTestForwarder()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Forward(w, r, dest)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestForwardPreservesRequest(t *testing.T) {
	t.Parallel()

	type seen struct {
		method, path, query, host, body, originIP, requestID string
	}
	got := make(chan seen, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- seen{
			method:    r.Method,
			path:      r.URL.Path,
			query:     r.URL.RawQuery,
			host:      r.Host,
			body:      string(body),
			originIP:  r.Header.Get("origin_ip"),
			requestID: r.Header.Get(RequestIDHeader),
		}
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "created")
	}))
	defer upstream.Close()

	dest := mustURL(t, upstream.URL)
	gw := gatewayFor(t, dest)

	req, err := http.NewRequest(http.MethodPut, gw.URL+"/items/7?full=1", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Host = "abc.serv.example.com"
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusCreated || string(body) != "created" || resp.Header.Get("X-Upstream") != "yes" {
		t.Fatalf("unexpected response %d %q %v", resp.StatusCode, body, resp.Header)
	}
	s := <-got
	if s.method != http.MethodPut || s.path != "/items/7" || s.query != "full=1" || s.body != `{"a":1}` {
		t.Fatalf("unexpected upstream request %+v", s)
	}
	if s.host != dest.Host {
		t.Fatalf("expected host %q, got %q", dest.Host, s.host)
	}
	if s.originIP != "127.0.0.1" {
		t.Fatalf("expected origin_ip 127.0.0.1, got %q", s.originIP)
	}
	if s.requestID == "" {
		t.Fatal("expected a request id")
	}
}

func TestForwardRewritesUpstreamRedirect(t *testing.T) {
	t.Parallel()

	var upstream *httptest.Server
	upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, upstream.URL+"/login", http.StatusFound)
	}))
	defer upstream.Close()

	gw := gatewayFor(t, mustURL(t, upstream.URL))
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	req, _ := http.NewRequest(http.MethodGet, gw.URL+"/", nil)
	req.Host = "abc.serv.example.com"
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "http://abc.serv.example.com/login" {
		t.Fatalf("expected rewritten location, got %q", got)
	}
}

func TestForwardDeadUpstreamIsBadGateway(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	gw := gatewayFor(t, &url.URL{Scheme: "http", Host: addr})
	resp, err := http.Get(gw.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestForwardStreamsResponse(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "first\n")
		w.(http.Flusher).Flush()
		<-release
		_, _ = io.WriteString(w, "second\n")
	}))
	defer upstream.Close()
	defer close(release)

	gw := gatewayFor(t, mustURL(t, upstream.URL))
	resp, err := http.Get(gw.URL + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	buf := make([]byte, len("first\n"))
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(resp.Body, buf)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected first chunk before upstream completed")
	}
	if string(buf) != "first\n" {
		t.Fatalf("unexpected chunk %q", buf)
	}
}

func TestForwardWebSocketPassThrough(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte("echo:"), msg...)); err != nil {
				return
			}
		}
	}))
	defer upstream.Close()

	gw := gatewayFor(t, mustURL(t, upstream.URL))
	wsURL := "ws" + strings.TrimPrefix(gw.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != "echo:hi" {
		t.Fatalf("unexpected message %q", msg)
	}
}
