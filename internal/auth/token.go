// Package auth provides token and code generation plus comparison utilities
// used by the control API and the pending-token cache.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// Alphabet is the character set for generated tokens and codes.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const (
	// TokenLength is the length of verification and bearer tokens.
	TokenLength = 256
	// DefaultCodeLength is the length of generated public codes.
	DefaultCodeLength = 32
)

// GenerateToken returns a fresh bearer or verification token.
func GenerateToken() (string, error) {
	return RandomString(TokenLength)
}

// GenerateCode returns a fresh public code of the given length, falling back
// to [DefaultCodeLength] when length is not positive.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return RandomString(length)
}

// RandomString draws length characters from [Alphabet] using crypto/rand.
func RandomString(length int) (string, error) {
	const n = byte(len(Alphabet))
	// Rejection threshold avoids modulo bias: largest multiple of n <= 256.
	const maxFair = 256 - (256 % int(n))
	out := make([]byte, length)
	buf := make([]byte, length+16) // over-read to reduce rand calls
	filled := 0
	for filled < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("crypto/rand: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxFair {
				continue
			}
			out[filled] = Alphabet[b%n]
			filled++
			if filled == length {
				break
			}
		}
	}
	return string(out), nil
}

// ConstantTimeEquals compares two secrets in constant time.
func ConstantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
