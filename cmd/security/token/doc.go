// Package token is the credential codec for Parley.
//
// It signs and verifies HS256 JWTs carrying an identity claim and a token
// kind (access or refresh), reads expiry without verification for revocation
// bookkeeping, and provides the digest helpers used to key revocation records
// so that full tokens are never persisted.
//
// Environment:
// - PARLEY_JWT_SECRET: process-wide signing secret, at least 32 bytes.
package token
