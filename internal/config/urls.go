package config

import (
	"strconv"
	"strings"
)

// Scheme is the public scheme: https when HTTPS is served, http otherwise.
func (c ServerConfig) Scheme() string {
	if c.HTTPSEnabled {
		return "https"
	}
	return "http"
}

// publicPortSuffix is empty when the public port is the scheme default.
func (c ServerConfig) publicPortSuffix() string {
	if c.HTTPSEnabled {
		if c.HTTPSPort == 443 {
			return ""
		}
		return ":" + strconv.Itoa(c.HTTPSPort)
	}
	if c.HTTPPort == 80 {
		return ""
	}
	return ":" + strconv.Itoa(c.HTTPPort)
}

// SubdomainURL builds "<scheme>://<sub>.<host>[:port]<path>". An empty sub
// yields the primary site.
func (c ServerConfig) SubdomainURL(sub, path string) string {
	host := c.Host
	if sub = strings.Trim(sub, "."); sub != "" {
		host = sub + "." + c.Host
	}
	return c.Scheme() + "://" + host + c.publicPortSuffix() + path
}

// ServingURL is the public tunnel URL for a code.
func (c ServerConfig) ServingURL(code string) string {
	return c.SubdomainURL(code+"."+c.SubdomainServ, "")
}

// DocsURL is a documentation URL for path.
func (c ServerConfig) DocsURL(path string) string {
	return c.SubdomainURL(c.SubdomainDocs, path)
}

// SiteURL is a URL on the primary site.
func (c ServerConfig) SiteURL(path string) string {
	return c.SubdomainURL("", path)
}

// APIHost is the exact host of the control API.
func (c ServerConfig) APIHost() string { return c.SubdomainAPI + "." + c.Host }

// DocsHost is the exact host of the documentation site.
func (c ServerConfig) DocsHost() string { return c.SubdomainDocs + "." + c.Host }

// ServSuffix is the suffix shared by every code tunnel host, leading dot included.
func (c ServerConfig) ServSuffix() string { return "." + c.SubdomainServ + "." + c.Host }
