// Package revocation records revoked tokens until they would have expired anyway.
//
// Records are keyed by a SHA-256 digest of the token, never the token itself,
// and live for exactly the TTL they were marked with. A backend that cannot be
// reached reports ErrStoreUnavailable, which callers treat as "revoked".
package revocation

import (
	"context"
	"errors"
	"time"

	"parley/cmd/security/token"
)

// ErrStoreUnavailable means the backend could not answer. It is never "not revoked".
var ErrStoreUnavailable = errors.New("revocation store unavailable")

// Store tracks revoked tokens.
type Store interface {
	// MarkRevoked revokes raw for ttl. A non-positive ttl is a no-op: the
	// token is already past its expiry and fails verification on its own.
	MarkRevoked(ctx context.Context, raw string, ttl time.Duration) error

	// IsRevoked reports whether raw was revoked and the record is still live.
	IsRevoked(ctx context.Context, raw string) (bool, error)

	// Consume revokes raw for ttl only if no live record exists, and reports
	// whether this call created the record. Exactly one of several concurrent
	// callers sees true. A non-positive ttl reports false.
	Consume(ctx context.Context, raw string, ttl time.Duration) (bool, error)
}

// DefaultKeyPrefix namespaces revocation keys in shared backends.
const DefaultKeyPrefix = "parley:revoked:"

// Key derives the storage key for raw.
func Key(prefix, raw string) string {
	return prefix + token.HashSHA256Hex(raw)
}
