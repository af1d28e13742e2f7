// Package password provides password hashing and verification utilities for Parley.
//
// It wraps bcrypt from golang.org/x/crypto and includes:
// - Configurable cost and policy (via environment variables)
// - Password policy validation, including bcrypt's 72-byte input limit
// - Strict hash handling: malformed hashes are reported, never treated as a mismatch
package password
