// Package domain defines the core data types shared across the servgate
// gateway, store, and control API layers.
package domain

import (
	"strings"
	"time"
)

// Code is a registered public code and the raw port it maps to.
type Code struct {
	ID        int64
	Code      string
	Port      string
	CreatedAt time.Time
}

// Target is the resolved upstream for a code. Port is kept exactly as it was
// stored; use [Target.LocalPort] when building a destination.
type Target struct {
	Port string
}

// LocalPort returns the stored port truncated at its first ".".
func (t Target) LocalPort() string {
	return TruncatePort(t.Port)
}

// Token is a persisted bearer credential bound to the IP that verified it.
type Token struct {
	ID         int64
	Token      string
	IP         string
	CreatedAt  time.Time
	Authorized bool
}

// TruncatePort cuts a stored port value at its first ".". Some stored values
// carry a suffix after a dot; only the leading part is ever dialled.
func TruncatePort(port string) string {
	port = strings.TrimSpace(port)
	if idx := strings.IndexByte(port, '.'); idx >= 0 {
		return port[:idx]
	}
	return port
}
