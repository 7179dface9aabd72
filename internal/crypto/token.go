package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// SessionIDBytes is the entropy of a session identifier (256 bits).
const SessionIDBytes = 32

// NewSessionID returns an unguessable, non-sequential session identifier
// encoded as base64url without padding (43 characters).
func NewSessionID() (string, error) {
	buf := make([]byte, SessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// WellFormedSessionID reports whether s could have been produced by
// NewSessionID. Used to reject junk before it reaches either store.
func WellFormedSessionID(s string) bool {
	if len(s) != base64.RawURLEncoding.EncodedLen(SessionIDBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}

// Fingerprint returns a SHA-256 fingerprint of a token for log lines, so
// raw session ids never reach the logs.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

// Equal compares two tokens in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
