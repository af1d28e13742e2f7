package realtime

import (
	"time"

	"parley/cmd/identity/ids"
)

// NewHandle returns a ULID naming one websocket connection.
// ULIDs sort by creation time, so later handles compare greater.
func NewHandle(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id.
func NewEnvelopeID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
