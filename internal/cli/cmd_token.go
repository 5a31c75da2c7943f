package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/koltyakov/servgate/internal/client"
	"github.com/koltyakov/servgate/internal/client/settings"
	"github.com/koltyakov/servgate/internal/config"
	"github.com/koltyakov/servgate/internal/store/sqlite"
)

const defaultDBPath = "./db/servgate.db"

func runToken(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: servgate token <request|verify|list|revoke> [flags]")
		return 2
	}
	switch args[0] {
	case "request":
		return runTokenRequest(ctx, args[1:], stdout, stderr)
	case "verify":
		return runTokenVerify(ctx, args[1:], stdout, stderr)
	case "list":
		return runTokenList(ctx, args[1:], stdout, stderr)
	case "revoke":
		return runTokenRevoke(ctx, args[1:], stdout, stderr)
	default:
		fmt.Fprintln(stderr, "unknown token command:", args[0])
		return 2
	}
}

func runTokenRequest(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token-request", flag.ContinueOnError)
	fs.SetOutput(stderr)
	resolve := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg := resolve()
	if err := cfg.Validate(false); err != nil {
		fmt.Fprintln(stderr, "token request error:", err)
		return 2
	}
	if err := client.New(cfg, nil).TokenCreate(ctx); err != nil {
		fmt.Fprintln(stderr, "token request failed:", client.ShortError(err))
		return 1
	}
	fmt.Fprintln(stdout, "Pending token issued. It was sent to the operator channel and expires soon;")
	fmt.Fprintln(stdout, "run `servgate token verify <pending-token>` from this machine to activate it.")
	return 0
}

func runTokenVerify(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token-verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	resolve := clientFlags(fs)
	save := true
	fs.BoolVar(&save, "save", save, "Save the API URL and token to "+settings.Path())
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: servgate token verify [flags] <pending-token>")
		return 2
	}
	cfg := resolve()
	if err := cfg.Validate(false); err != nil {
		fmt.Fprintln(stderr, "token verify error:", err)
		return 2
	}
	token, err := client.New(cfg, nil).TokenVerify(ctx, strings.TrimSpace(fs.Arg(0)))
	if err != nil {
		fmt.Fprintln(stderr, "token verify failed:", client.ShortError(err))
		return 1
	}
	fmt.Fprintln(stdout, "token:", token)
	if save {
		path := settings.Path()
		if err := settings.Save(path, settings.Credentials{APIURL: cfg.APIURL, Token: token}); err != nil {
			fmt.Fprintln(stderr, "save credentials:", err)
			return 1
		}
		fmt.Fprintln(stdout, "saved:", path)
	}
	return 0
}

func runTokenList(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token-list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := envOr("SERVGATE_DB_PATH", defaultDBPath)
	var show bool
	fs.StringVar(&dbPath, "db", dbPath, "sqlite db path")
	fs.BoolVar(&show, "show", false, "Print full token values")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	store, code := openStore(dbPath, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	tokens, err := store.ListTokens(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "list tokens:", err)
		return 1
	}
	for _, t := range tokens {
		value := t.Token
		if !show {
			value = maskToken(value)
		}
		fmt.Fprintf(stdout, "%d\t%s\t%s\tauthorized=%t\tcreated=%s\n", t.ID, value, t.IP, t.Authorized, t.CreatedAt.UTC().Format(time.RFC3339))
	}
	return 0
}

func runTokenRevoke(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token-revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := envOr("SERVGATE_DB_PATH", defaultDBPath)
	fs.StringVar(&dbPath, "db", dbPath, "sqlite db path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: servgate token revoke [--db PATH] <token>")
		return 2
	}

	store, code := openStore(dbPath, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = store.Close() }()

	removed, err := store.DeleteToken(ctx, strings.TrimSpace(fs.Arg(0)))
	if err != nil {
		fmt.Fprintln(stderr, "revoke token:", err)
		return 1
	}
	if !removed {
		fmt.Fprintln(stderr, "token not found")
		return 1
	}
	fmt.Fprintln(stdout, "revoked")
	return 0
}

func openStore(dbPath string, stderr io.Writer) (*sqlite.Store, int) {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		fmt.Fprintln(stderr, "db error:", err)
		return nil, 1
	}
	return store, 0
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..."
}

func requireClient(cfg config.ClientConfig, stderr io.Writer, op string) (*client.Client, bool) {
	if err := cfg.Validate(true); err != nil {
		fmt.Fprintf(stderr, "%s error: %v\n", op, err)
		return nil, false
	}
	return client.New(cfg, nil), true
}
