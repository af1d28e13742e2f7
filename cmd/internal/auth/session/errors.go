package session

import "errors"

var (
	// ErrInvalidCredentials is returned by Login for an unknown account or a wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidOrExpired covers a bad signature, an expired token, a revoked
	// token and a token of the wrong kind. Callers cannot tell them apart.
	ErrInvalidOrExpired = errors.New("invalid or expired token")

	// ErrSubjectNotFound is returned when a refresh token names a deleted account.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrStoreUnavailable is returned when the revocation store cannot answer.
	// Authentication fails closed.
	ErrStoreUnavailable = errors.New("revocation store unavailable")

	// ErrInternal is returned for signing, account store and revoke-on-rotate failures.
	ErrInternal = errors.New("internal session error")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
