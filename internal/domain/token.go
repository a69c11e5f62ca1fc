package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// MaxTokenLength bounds accepted session tokens in bytes.
const MaxTokenLength = 512

const sessionTokenBytes = 32

// ParseCookieToken canonicalises a raw cookie value into a session token.
//
// The value is percent-decoded, stripped of surrounding whitespace, of one
// pair of surrounding double quotes and of an optional "Bearer " prefix.
// It reports false for empty results and for anything that cannot be a
// token we issued: bad escapes, control characters, whitespace, quotes,
// separators, non-ASCII bytes, or more than MaxTokenLength bytes.
func ParseCookieToken(raw string) (string, bool) {
	if raw == "" || len(raw) > 3*MaxTokenLength {
		return "", false
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}

	token := strings.TrimSpace(decoded)
	if len(token) >= 2 && token[0] == '"' && token[len(token)-1] == '"' {
		token = strings.TrimSpace(token[1 : len(token)-1])
	}
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}

	if token == "" || len(token) > MaxTokenLength {
		return "", false
	}
	for i := 0; i < len(token); i++ {
		if !isTokenByte(token[i]) {
			return "", false
		}
	}
	return token, true
}

func isTokenByte(b byte) bool {
	if b <= ' ' || b >= 0x7f {
		return false
	}
	switch b {
	case '"', ',', ';', '\\':
		return false
	}
	return true
}

// NewSessionToken returns 32 random bytes encoded as unpadded base64url.
func NewSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
