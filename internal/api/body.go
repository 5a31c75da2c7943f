package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/koltyakov/servgate/internal/netutil"
)

const defaultMaxBodyBytes = 64 * 1024

type ctxKey int

const (
	bodyKey ctxKey = iota
	tokenKey
)

// body is a leniently decoded JSON request object.
type body map[string]json.RawMessage

// str returns the field as text. Strings are returned verbatim and numbers as
// their literal. Absent, null, booleans, "" and numeric zero all read as "".
func (b body) str(key string) string {
	raw, ok := b[key]
	if !ok {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || f == 0 {
			return ""
		}
		return string(raw)
	}
	return ""
}

// readBody decodes the request body. Empty, oversized and malformed bodies
// all yield an empty object.
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) body {
	if r.Body == nil || r.Body == http.NoBody {
		return body{}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	defer func() { _ = r.Body.Close() }()

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return body{}
	}
	var out body
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return body{}
	}
	return out
}

func (h *Handler) withBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := readBody(w, r, h.cfg.MaxBodyBytes)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyKey, b)))
	})
}

func bodyFrom(ctx context.Context) body {
	b, _ := ctx.Value(bodyKey).(body)
	if b == nil {
		return body{}
	}
	return b
}

func clientIP(r *http.Request) string {
	return strings.TrimSpace(netutil.RemoteIP(r))
}
