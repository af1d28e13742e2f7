package token

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// SecretEnvKey is the env var name for the signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "PARLEY_JWT_SECRET"

	// MinSecretBytes is the smallest accepted HS256 secret.
	MinSecretBytes = 32
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ParseSecret returns the signing secret (trimmed), enforcing a minimum byte length.
// Missing or blank -> ErrSecretMissing. Too short -> ErrSecretTooShort.
func ParseSecret(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}
