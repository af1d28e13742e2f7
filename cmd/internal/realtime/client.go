package realtime

import (
	"sync"

	v1 "parley/shared/contracts/realtime/v1"
)

// Client represents one authenticated websocket connection.
//
// The send queue is never closed; done tells the writer to stop. This keeps
// Enqueue safe while broadcasters still hold a snapshot containing c.
type Client struct {
	Handle string
	UserID string

	send      chan v1.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(handle, userID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		Handle: handle,
		UserID: userID,
		send:   make(chan v1.Envelope, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue queues env without blocking. It returns false when the client is
// closing or its queue is full.
func (c *Client) Enqueue(env v1.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Outbound is drained by the connection writer.
func (c *Client) Outbound() <-chan v1.Envelope {
	return c.send
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
