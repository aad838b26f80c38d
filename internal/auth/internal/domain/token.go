// Package domain contains the SDK token type and the rules for generating,
// hashing and parsing tokens.
package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TokenPrefix starts every generated SDK token.
const TokenPrefix = "mvo_"

// Domain errors.
var (
	ErrTokenNotFound = errors.New("sdk token not found")
	ErrTokenRevoked  = errors.New("sdk token revoked")
)

// Token is an SDK token record. The plaintext token is never stored; only
// its SHA256 hash is persisted.
type Token struct {
	// ID is the unique identifier (UUID v7) for this record.
	ID string

	// AppID is the application the token authenticates as.
	AppID string

	// TokenHash is the SHA256 hex-encoded hash of the plaintext token.
	TokenHash string

	// Name is a human-readable label (e.g., "web production").
	Name string

	Revoked   bool
	CreatedAt time.Time
	RevokedAt *time.Time
}

var tokenRegex = regexp.MustCompile(`^mvo_[0-9a-f]{64}$`)

// GenerateToken creates a random token from 32 bytes of entropy and returns
// the plaintext and its hash.
func GenerateToken() (plaintext string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plaintext = TokenPrefix + hex.EncodeToString(b)
	return plaintext, HashToken(plaintext), nil
}

// HashToken computes the lowercase hex SHA256 of a plaintext token.
// Tokens are high-entropy, so a fast hash is enough and keeps lookups cheap.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ValidateTokenFormat reports whether s looks like a generated token.
func ValidateTokenFormat(s string) bool {
	return tokenRegex.MatchString(s)
}

// ParseAuthorization extracts the token from an Authorization header value.
// SDKs send the raw token; a "Bearer " prefix is also accepted.
func ParseAuthorization(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		header = strings.TrimSpace(header[7:])
	}
	return header
}
