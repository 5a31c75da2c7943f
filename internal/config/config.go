package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type ServerConfig struct {
	Host           string
	ListenIP       string
	HTTPEnabled    bool
	HTTPSEnabled   bool
	HTTPPort       int
	HTTPSPort      int
	RedirectHTTP   bool
	TLSCertFile    string
	TLSKeyFile     string
	HTTP3          bool
	WebhookURL     string
	SubdomainServ  string
	SubdomainAPI   string
	SubdomainDocs  string
	DBPath         string
	DBMaxOpenConns int
	DocsDir        string
	SiteDir        string
	DescriptorDir  string
	LogLevel       string
	LogFormat      string
	MetricsListen  string
	Pprof          bool
	RateLimit      int
	RateWindow     time.Duration
	PendingTTL     time.Duration
	CodeLength     int
	MaxBodyBytes   int64
	NotifyTimeout  time.Duration
	JanitorPeriod  time.Duration
}

type ClientConfig struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

const defaultHost = "localhost"
const defaultHTTPPort = 80
const defaultHTTPSPort = 443
const defaultDBPath = "./db/servgate.db"
const defaultDocsDir = "./build/docs"
const defaultSiteDir = "./build/frontend"
const defaultDescriptorDir = "./build/extern"
const defaultRateLimit = 20
const defaultRateWindow = 4 * 15 * time.Minute
const defaultPendingTTL = 15 * time.Minute
const defaultCodeLength = 32
const defaultMaxBodyBytes = 64 * 1024
const defaultNotifyTimeout = 10 * time.Second
const defaultJanitorPeriod = 5 * time.Minute
const defaultClientTimeout = 30 * time.Second

func ParseServerFlags(args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Host:           envOrDefault("SERVGATE_HOST", defaultHost),
		ListenIP:       envOrDefault("SERVGATE_LISTEN_IP", ""),
		HTTPEnabled:    envBoolOrDefault("SERVGATE_HTTP", true),
		HTTPSEnabled:   envBoolOrDefault("SERVGATE_HTTPS", true),
		HTTPPort:       envIntOrDefault("SERVGATE_HTTP_PORT", defaultHTTPPort),
		HTTPSPort:      envIntOrDefault("SERVGATE_HTTPS_PORT", defaultHTTPSPort),
		RedirectHTTP:   envBoolOrDefault("SERVGATE_REDIRECT_HTTP", false),
		TLSCertFile:    envOrDefault("SERVGATE_TLS_CERT_FILE", ""),
		TLSKeyFile:     envOrDefault("SERVGATE_TLS_KEY_FILE", ""),
		HTTP3:          envBoolOrDefault("SERVGATE_HTTP3", false),
		WebhookURL:     envOrDefault("SERVGATE_WEBHOOK_URL", ""),
		SubdomainServ:  envOrDefault("SERVGATE_SUBDOMAIN_SERV", "serv"),
		SubdomainAPI:   envOrDefault("SERVGATE_SUBDOMAIN_API", "api"),
		SubdomainDocs:  envOrDefault("SERVGATE_SUBDOMAIN_DOCS", "docs"),
		DBPath:         envOrDefault("SERVGATE_DB_PATH", defaultDBPath),
		DBMaxOpenConns: envIntOrDefault("SERVGATE_DB_MAX_OPEN_CONNS", 0),
		DocsDir:        envOrDefault("SERVGATE_DOCS_DIR", defaultDocsDir),
		SiteDir:        envOrDefault("SERVGATE_SITE_DIR", defaultSiteDir),
		DescriptorDir:  envOrDefault("SERVGATE_DESCRIPTOR_DIR", defaultDescriptorDir),
		LogLevel:       envOrDefault("SERVGATE_LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("SERVGATE_LOG_FORMAT", "text"),
		MetricsListen:  envOrDefault("SERVGATE_METRICS_LISTEN", ""),
		Pprof:          envBoolOrDefault("SERVGATE_PPROF", false),
		RateLimit:      envIntOrDefault("SERVGATE_RATE_LIMIT", defaultRateLimit),
		RateWindow:     envDurationOrDefault("SERVGATE_RATE_WINDOW", defaultRateWindow),
		PendingTTL:     envDurationOrDefault("SERVGATE_PENDING_TTL", defaultPendingTTL),
		CodeLength:     envIntOrDefault("SERVGATE_CODE_LENGTH", defaultCodeLength),
		MaxBodyBytes:   defaultMaxBodyBytes,
		NotifyTimeout:  defaultNotifyTimeout,
		JanitorPeriod:  defaultJanitorPeriod,
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Public base host, e.g. example.com")
	fs.StringVar(&cfg.ListenIP, "ip", cfg.ListenIP, "IP address to bind (empty = all interfaces)")
	fs.BoolVar(&cfg.HTTPEnabled, "http", cfg.HTTPEnabled, "Serve plain HTTP")
	fs.BoolVar(&cfg.HTTPSEnabled, "https", cfg.HTTPSEnabled, "Serve HTTPS (requires --cert and --key)")
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "HTTP listen port")
	fs.IntVar(&cfg.HTTPSPort, "https-port", cfg.HTTPSPort, "HTTPS listen port")
	fs.BoolVar(&cfg.RedirectHTTP, "redirect-http", cfg.RedirectHTTP, "Redirect plain HTTP requests to HTTPS")
	fs.StringVar(&cfg.TLSCertFile, "cert", cfg.TLSCertFile, "TLS certificate PEM file")
	fs.StringVar(&cfg.TLSKeyFile, "key", cfg.TLSKeyFile, "TLS private key PEM file")
	fs.BoolVar(&cfg.HTTP3, "http3", cfg.HTTP3, "Also serve HTTP/3 on the HTTPS port (UDP)")
	fs.StringVar(&cfg.WebhookURL, "webhook", cfg.WebhookURL, "Notification webhook URL (empty disables notifications)")
	fs.StringVar(&cfg.SubdomainServ, "subdomain-serv", cfg.SubdomainServ, "Subdomain label for code tunnels")
	fs.StringVar(&cfg.SubdomainAPI, "subdomain-api", cfg.SubdomainAPI, "Subdomain label for the control API")
	fs.StringVar(&cfg.SubdomainDocs, "subdomain-docs", cfg.SubdomainDocs, "Subdomain label for documentation")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.IntVar(&cfg.DBMaxOpenConns, "db-max-open-conns", cfg.DBMaxOpenConns, "SQLite max open connections (0 = default)")
	fs.StringVar(&cfg.DocsDir, "docs-dir", cfg.DocsDir, "Directory served on the docs subdomain")
	fs.StringVar(&cfg.SiteDir, "site-dir", cfg.SiteDir, "Directory served on the primary domain")
	fs.StringVar(&cfg.DescriptorDir, "descriptor-dir", cfg.DescriptorDir, "Directory holding per-name target descriptors")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text|json")
	fs.StringVar(&cfg.MetricsListen, "metrics-listen", cfg.MetricsListen, "Address for /metrics and /healthz (empty disables)")
	fs.BoolVar(&cfg.Pprof, "pprof", cfg.Pprof, "Serve /debug/pprof on the metrics listener")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Control API requests allowed per client per window")
	fs.DurationVar(&cfg.RateWindow, "rate-window", cfg.RateWindow, "Control API rate limit window")
	fs.DurationVar(&cfg.PendingTTL, "pending-ttl", cfg.PendingTTL, "Lifetime of unverified tokens")
	fs.IntVar(&cfg.CodeLength, "code-length", cfg.CodeLength, "Length of generated codes")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Host = normalizeDomainHost(cfg.Host)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints of an already populated config.
func (c ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("missing --host or SERVGATE_HOST")
	}
	if !c.HTTPEnabled && !c.HTTPSEnabled {
		return errors.New("at least one of http or https must be enabled")
	}
	if c.HTTPSEnabled && (strings.TrimSpace(c.TLSCertFile) == "" || strings.TrimSpace(c.TLSKeyFile) == "") {
		return errors.New("https requires --cert and --key (paths to cert.pem and key.pem)")
	}
	if c.HTTP3 && !c.HTTPSEnabled {
		return errors.New("http3 requires https")
	}
	if err := validPort("http port", c.HTTPPort); err != nil {
		return err
	}
	if err := validPort("https port", c.HTTPSPort); err != nil {
		return err
	}
	for name, label := range map[string]string{
		"serv subdomain": c.SubdomainServ,
		"api subdomain":  c.SubdomainAPI,
		"docs subdomain": c.SubdomainDocs,
	} {
		if strings.TrimSpace(label) == "" || strings.Contains(label, "/") {
			return fmt.Errorf("%s must be a non-empty host label", name)
		}
	}
	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("webhook must be an absolute http(s) URL")
		}
	}
	if c.Pprof && strings.TrimSpace(c.MetricsListen) == "" {
		return errors.New("pprof requires --metrics-listen")
	}
	if c.DBMaxOpenConns < 0 {
		return errors.New("db max open conns must be >= 0")
	}
	if c.RateLimit <= 0 {
		return errors.New("rate limit must be > 0")
	}
	if c.RateWindow <= 0 {
		return errors.New("rate window must be > 0")
	}
	if c.PendingTTL <= 0 {
		return errors.New("pending ttl must be > 0")
	}
	if c.CodeLength <= 0 {
		return errors.New("code length must be > 0")
	}
	return nil
}

// DefaultClientConfig returns client settings seeded from the environment.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		APIURL:  envOrDefault("SERVGATE_API_URL", ""),
		Token:   envOrDefault("SERVGATE_TOKEN", ""),
		Timeout: defaultClientTimeout,
	}
}

// BindFlags registers the shared client flags on fs.
func (c *ClientConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.APIURL, "api", c.APIURL, "Control API base URL (e.g. https://api.example.com)")
	fs.StringVar(&c.Token, "token", c.Token, "Persisted bearer token")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Request timeout")
}

func (c ClientConfig) Validate(needToken bool) error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New("missing --api or SERVGATE_API_URL")
	}
	if needToken && strings.TrimSpace(c.Token) == "" {
		return errors.New("missing --token or SERVGATE_TOKEN")
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s must be between 0 and 65535", name)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBoolOrDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func normalizeDomainHost(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	if idx := strings.Index(v, "/"); idx >= 0 {
		v = v[:idx]
	}
	if strings.HasPrefix(v, "[") {
		if end := strings.Index(v, "]"); end > 0 {
			return v[1:end]
		}
	}
	if strings.Contains(v, ":") {
		parts := strings.Split(v, ":")
		v = parts[0]
	}
	return strings.TrimSuffix(v, ".")
}
