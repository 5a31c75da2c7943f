package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrCodeNotFound means no target is registered for the requested code.
	ErrCodeNotFound = errors.New("code not found")

	// ErrTokenNotFound means the supplied bearer token is not persisted.
	ErrTokenNotFound = errors.New("token not found")

	// ErrDescriptorNotFound means no descriptor file exists for a name.
	ErrDescriptorNotFound = errors.New("descriptor not found")

	// ErrInvalidDescriptor means a descriptor was read but cannot produce a
	// destination (no url, hostname or ip).
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrRateLimitExceeded is returned when a client exceeds the allowed
	// request rate.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// RouteError wraps an underlying error with the host and routing step that
// produced it.
type RouteError struct {
	Host string
	Op   string
	Err  error
}

func (e *RouteError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("route %s: %s: %v", e.Host, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}
