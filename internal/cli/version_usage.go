package cli

import (
	"fmt"
	"io"
	"strings"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func versionString() string {
	if Version != "dev" && !strings.HasPrefix(Version, "v") {
		return "v" + Version
	}
	return Version
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, "servgate", versionString())
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `servgate - public codes for locally running services

Usage:
  servgate server [flags]                 Start the gateway (see servgate server -h)
  servgate token request                  Ask for a pending token (delivered via webhook)
  servgate token verify <pending-token>   Exchange it for a persisted token and save it
  servgate token list [--db PATH]         List persisted tokens (local admin)
  servgate token revoke <token>           Revoke a persisted token (local admin)
  servgate code create [--code C] <port>  Register a code (random when omitted)
  servgate code list                      List registered codes
  servgate code delete <code>             Remove a code
  servgate version                        Print version
  servgate help                           Show this help

Client commands read --api/--token, then SERVGATE_API_URL/SERVGATE_TOKEN,
then the credentials saved by "token verify".

Environment Variables:
  SERVGATE_HOST            Public base host (default: localhost)
  SERVGATE_HTTPS           Serve HTTPS (default: true; needs cert and key)
  SERVGATE_TLS_CERT_FILE   TLS certificate PEM file
  SERVGATE_TLS_KEY_FILE    TLS private key PEM file
  SERVGATE_WEBHOOK_URL     Notification webhook (pending tokens are sent here)
  SERVGATE_DB_PATH         SQLite database path (default: ./db/servgate.db)
  SERVGATE_LOG_LEVEL       Log level: debug|info|warn|error (default: info)
  SERVGATE_API_URL         Control API base URL for client commands
  SERVGATE_TOKEN           Persisted token for client commands
  SERVGATE_CREDENTIALS     Credentials file (default: ~/.servgate/credentials.json)`)
}
