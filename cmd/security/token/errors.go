package token

import "errors"

// Public, stable errors for callers.
var (
	ErrInvalidSignature = errors.New("token signature invalid or malformed")
	ErrExpired          = errors.New("token expired")
	ErrInvalidTTL       = errors.New("token ttl must be positive")

	ErrSecretMissing  = errors.New("token secret missing")
	ErrSecretTooShort = errors.New("token secret too short")
)
