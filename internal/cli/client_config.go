package cli

import (
	"flag"
	"strings"

	"github.com/koltyakov/servgate/internal/client/settings"
	"github.com/koltyakov/servgate/internal/config"
)

// clientFlags binds the shared client flags and returns a resolver that fills
// the gaps from the saved credentials once the flags are parsed.
func clientFlags(fs *flag.FlagSet) func() config.ClientConfig {
	cfg := config.DefaultClientConfig()
	cfg.BindFlags(fs)
	return func() config.ClientConfig {
		if strings.TrimSpace(cfg.APIURL) != "" && strings.TrimSpace(cfg.Token) != "" {
			return cfg
		}
		saved, err := settings.Load(settings.Path())
		if err != nil {
			return cfg
		}
		if strings.TrimSpace(cfg.APIURL) == "" {
			cfg.APIURL = saved.APIURL
		}
		if strings.TrimSpace(cfg.Token) == "" && sameAPI(cfg.APIURL, saved.APIURL) {
			cfg.Token = saved.Token
		}
		return cfg
	}
}

// sameAPI avoids sending a saved token to a different server.
func sameAPI(a, b string) bool {
	norm := func(s string) string { return strings.TrimSuffix(strings.TrimSpace(s), "/") }
	return strings.EqualFold(norm(a), norm(b))
}
