// Package identity owns Parley accounts: the account and profile model, registration
// normalization and the account store boundary with in-memory, MongoDB and
// PostgreSQL implementations.
//
// Passwords arrive here already hashed; this package never sees plaintext.
package identity
