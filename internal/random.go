package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
)

const (
	refreshTokenSize = 64
	sessionIDSize    = 32
	stampSize        = 20
	stateSize        = 16
)

var stampEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return buf, nil
}

// NewRefreshToken returns 64 random bytes, standard base64 encoded.
func NewRefreshToken() (string, error) {
	raw, err := randomBytes(refreshTokenSize)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// HashToken returns the SHA-256 digest of an opaque token for storage.
func HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// TokenMatches compares a presented token with a stored digest in constant time.
func TokenMatches(token string, digest []byte) bool {
	if len(digest) != sha256.Size {
		return false
	}
	return subtle.ConstantTimeCompare(HashToken(token), digest) == 1
}

// NewSecurityStamp returns a fresh per-user invalidation nonce.
func NewSecurityStamp() (string, error) {
	raw, err := randomBytes(stampSize)
	if err != nil {
		return "", err
	}
	return stampEncoding.EncodeToString(raw), nil
}

// NewSessionID returns a URL-safe server session identifier.
func NewSessionID() (string, error) {
	raw, err := randomBytes(sessionIDSize)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewState returns a URL-safe nonce for OAuth state and challenge ids.
func NewState() (string, error) {
	raw, err := randomBytes(stateSize)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
