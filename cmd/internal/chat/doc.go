// Package chat stores direct messages between two accounts and serves the
// chat REST endpoints. Realtime relay of message changes lives in realtime.
package chat
