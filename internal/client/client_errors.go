package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koltyakov/servgate/internal/status"
)

// StatusError is a well-formed envelope whose status is not the one the call
// expected.
type StatusError struct {
	HTTPStatus int
	Kind       status.Kind
	Body       status.Body
	// Redirect is set when the server suggests a location, e.g. on NotFound.
	Redirect string
	// RetryAfter comes from RateLimit-Reset on throttled responses.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := e.Body.Message
	if msg == "" {
		msg = e.Kind.Message()
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Kind.Code(), msg)
}

func newStatusError(resp *http.Response, k status.Kind, b status.Body, extra map[string]json.RawMessage) *StatusError {
	e := &StatusError{HTTPStatus: resp.StatusCode, Kind: k, Body: b}
	if raw, ok := extra["redirect"]; ok {
		_ = json.Unmarshal(raw, &e.Redirect)
	}
	if k == status.TooManyRequestsException {
		if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("RateLimit-Reset"))); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// ResponseError is a reply that is not a status envelope at all, typically
// from something in front of the server.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected response: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected response: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsKind reports whether err is a StatusError of kind k.
func IsKind(err error, k status.Kind) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Kind == k
}

// ShortError extracts the innermost meaningful message from nested network
// errors so CLI output stays concise ("connection refused" rather than the
// full dial trace).
func ShortError(err error) string {
	if err == nil {
		return ""
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Err != nil {
		return oe.Err.Error()
	}
	return err.Error()
}
