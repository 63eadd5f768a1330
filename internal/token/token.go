// Package token issues opaque restaurant credentials.
package token

import (
	"crypto/rand"
	"encoding/base64"
)

const rawLen = 24

// Length is the size of every issued token string.
const Length = 32

// New returns a fixed-length, URL-safe random token. Uniqueness is not
// checked here; the restaurants table rejects collisions.
func New() (string, error) {
	buf := make([]byte, rawLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
