package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/koltyakov/servgate/internal/config"
	ilog "github.com/koltyakov/servgate/internal/log"
	"github.com/koltyakov/servgate/internal/server"
	"github.com/koltyakov/servgate/internal/store/sqlite"
)

func runServer(ctx context.Context, args []string, stderr io.Writer) int {
	loadEnvFromDotEnv(".env")

	cfg, err := config.ParseServerFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "server config error:", err)
		return 2
	}
	logger := ilog.New(cfg.LogLevel, cfg.LogFormat)

	store, err := sqlite.OpenWithOptions(cfg.DBPath, sqlite.OpenOptions{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		fmt.Fprintln(stderr, "db error:", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	logger.Info("starting servgate",
		"version", versionString(),
		"host", cfg.Host,
		"api", cfg.SubdomainURL(cfg.SubdomainAPI, ""),
		"webhook", cfg.WebhookURL != "",
	)
	if err := server.New(cfg, store, logger).Run(ctx); err != nil {
		fmt.Fprintln(stderr, "server error:", err)
		return 1
	}
	return 0
}
