// Package session implements Parley's session lifecycle.
//
// A session is a pair of stateless JWTs: a short-lived access token and a
// longer-lived refresh token. Revocation is tracked out of band in a
// revocation.Store for the remaining life of each revoked token, so a logged
// out or rotated credential can never authenticate again.
//
// Every failure leaving this package is one of the sentinel errors in
// errors.go; codec and store errors are logged here and never returned raw.
package session
