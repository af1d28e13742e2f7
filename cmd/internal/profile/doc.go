// Package profile serves the /api/user endpoints: reading and upserting a
// profile and replacing the caller's interests.
package profile
