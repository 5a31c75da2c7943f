package config

import (
	"testing"
	"time"
)

func TestNormalizeDomainHost(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"example.com":                 "example.com",
		"https://example.com/path":    "example.com",
		"http://EXAMPLE.com:443/abc":  "example.com",
		"  sub.example.com.  ":        "sub.example.com",
		"https://[2001:db8::1]:10443": "2001:db8::1",
	}

	for in, want := range tests {
		if got := normalizeDomainHost(in); got != want {
			t.Fatalf("normalizeDomainHost(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestParseServerFlagsDefaults(t *testing.T) {
	t.Setenv("SERVGATE_HOST", "")
	t.Setenv("SERVGATE_RATE_LIMIT", "")

	cfg, err := ParseServerFlags([]string{"--https=false"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "localhost" {
		t.Fatalf("expected default host localhost, got %q", cfg.Host)
	}
	if cfg.RateLimit != 20 || cfg.RateWindow != time.Hour {
		t.Fatalf("unexpected rate limit defaults: %d per %s", cfg.RateLimit, cfg.RateWindow)
	}
	if cfg.PendingTTL != 15*time.Minute {
		t.Fatalf("expected 15m pending ttl, got %s", cfg.PendingTTL)
	}
	if cfg.CodeLength != 32 {
		t.Fatalf("expected code length 32, got %d", cfg.CodeLength)
	}
	if cfg.SubdomainServ != "serv" || cfg.SubdomainAPI != "api" || cfg.SubdomainDocs != "docs" {
		t.Fatalf("unexpected subdomain defaults: %+v", cfg)
	}
}

func TestParseServerFlagsEnvOverrides(t *testing.T) {
	t.Setenv("SERVGATE_HOST", "Example.COM")
	t.Setenv("SERVGATE_HTTPS", "false")
	t.Setenv("SERVGATE_HTTP_PORT", "8080")
	t.Setenv("SERVGATE_RATE_WINDOW", "30m")

	cfg, err := ParseServerFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "example.com" {
		t.Fatalf("expected normalized host, got %q", cfg.Host)
	}
	if cfg.HTTPSEnabled {
		t.Fatal("expected https disabled from env")
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected http port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.RateWindow != 30*time.Minute {
		t.Fatalf("expected 30m window, got %s", cfg.RateWindow)
	}
}

func TestParseServerFlagsValidation(t *testing.T) {
	t.Setenv("SERVGATE_HTTPS", "")
	t.Setenv("SERVGATE_TLS_CERT_FILE", "")
	t.Setenv("SERVGATE_TLS_KEY_FILE", "")
	tests := []struct {
		name string
		args []string
	}{
		{name: "https requires cert", args: []string{"--host", "example.com"}},
		{name: "nothing served", args: []string{"--http=false", "--https=false"}},
		{name: "http3 requires https", args: []string{"--https=false", "--http3"}},
		{name: "port range", args: []string{"--https=false", "--http-port", "70000"}},
		{name: "webhook must be absolute", args: []string{"--https=false", "--webhook", "hooks/abc"}},
		{name: "rate limit positive", args: []string{"--https=false", "--rate-limit", "0"}},
		{name: "code length positive", args: []string{"--https=false", "--code-length", "0"}},
		{name: "pprof requires metrics listener", args: []string{"--https=false", "--pprof"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseServerFlags(tt.args); err == nil {
				t.Fatalf("expected validation error for %v", tt.args)
			}
		})
	}
}

func TestServerURLs(t *testing.T) {
	t.Parallel()

	cfg := ServerConfig{Host: "example.com", HTTPSEnabled: true, HTTPSPort: 443, HTTPPort: 80, SubdomainServ: "serv", SubdomainAPI: "api", SubdomainDocs: "docs"}
	if got := cfg.ServingURL("abc"); got != "https://abc.serv.example.com" {
		t.Fatalf("unexpected serving url %q", got)
	}
	if got := cfg.DocsURL("/status/CodeCreated"); got != "https://docs.example.com/status/CodeCreated" {
		t.Fatalf("unexpected docs url %q", got)
	}
	if got := cfg.SiteURL("/404"); got != "https://example.com/404" {
		t.Fatalf("unexpected site url %q", got)
	}
	if cfg.APIHost() != "api.example.com" || cfg.DocsHost() != "docs.example.com" || cfg.ServSuffix() != ".serv.example.com" {
		t.Fatalf("unexpected hosts: %s %s %s", cfg.APIHost(), cfg.DocsHost(), cfg.ServSuffix())
	}

	plain := ServerConfig{Host: "example.com", HTTPPort: 8080, SubdomainServ: "serv"}
	if got := plain.ServingURL("x.y"); got != "http://x.y.serv.example.com:8080" {
		t.Fatalf("unexpected plain serving url %q", got)
	}
}
