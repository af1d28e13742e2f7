package realtime

import (
	"errors"
	"slices"
	"strings"
	"sync"

	v1 "parley/shared/contracts/realtime/v1"
)

var (
	ErrHandleTaken   = errors.New("realtime: handle already registered")
	ErrInvalidHandle = errors.New("realtime: handle, user id and client are required")
)

// Delivery is the outcome of routing one envelope to a user.
type Delivery uint8

const (
	Delivered Delivery = iota
	// DroppedOffline means the user had no live connection.
	DroppedOffline
	// DroppedQueueFull means the target connection could not keep up.
	DroppedQueueFull
)

func (d Delivery) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case DroppedOffline:
		return "dropped_offline"
	case DroppedQueueFull:
		return "dropped_queue_full"
	default:
		return "unknown"
	}
}

// Peer is a read-only view of one live registry entry.
type Peer struct {
	Handle string
	UserID string
	Client *Client
}

type entry struct {
	userID string
	client *Client
	live   bool
}

// Registry maps connection handles to authenticated users.
//
// All state sits behind one mutex. Callers get copies (Snapshot) or act
// through methods; the maps never escape.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// byUser lists a user's handles in registration order.
	byUser map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		byUser:  make(map[string][]string),
	}
}

// Register adds a live entry for handle.
func (r *Registry) Register(handle, userID string, c *Client) error {
	if strings.TrimSpace(handle) == "" || strings.TrimSpace(userID) == "" || c == nil {
		return ErrInvalidHandle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[handle]; ok {
		return ErrHandleTaken
	}
	r.entries[handle] = &entry{userID: userID, client: c, live: true}
	r.byUser[userID] = append(r.byUser[userID], handle)
	return nil
}

// Unregister removes handle and returns the user it belonged to.
func (r *Registry) Unregister(handle string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[handle]
	if !ok {
		return "", false
	}
	delete(r.entries, handle)

	handles := slices.DeleteFunc(r.byUser[e.userID], func(h string) bool { return h == handle })
	if len(handles) == 0 {
		delete(r.byUser, e.userID)
	} else {
		r.byUser[e.userID] = handles
	}
	return e.userID, true
}

// FindHandleByUser returns the most recently registered live handle of userID.
func (r *Registry) FindHandleByUser(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, h, ok := r.findLocked(userID)
	return h, ok
}

func (r *Registry) findLocked(userID string) (*entry, string, bool) {
	handles := r.byUser[userID]
	for i := len(handles) - 1; i >= 0; i-- {
		if e := r.entries[handles[i]]; e != nil && e.live {
			return e, handles[i], true
		}
	}
	return nil, "", false
}

// SetLiveness flips the liveness flag of handle. Non-live entries are skipped
// by lookups and snapshots. It reports whether handle exists.
func (r *Registry) SetLiveness(handle string, live bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[handle]
	if !ok {
		return false
	}
	e.live = live
	return true
}

// Snapshot returns the live entries ordered by handle.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	out := make([]Peer, 0, len(r.entries))
	for h, e := range r.entries {
		if e.live {
			out = append(out, Peer{Handle: h, UserID: e.userID, Client: e.client})
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Peer) int { return strings.Compare(a.Handle, b.Handle) })
	return out
}

// Len counts live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.live {
			n++
		}
	}
	return n
}

// SendTo queues env on the live connection FindHandleByUser would return.
func (r *Registry) SendTo(userID string, env v1.Envelope) Delivery {
	r.mu.RLock()
	e, _, ok := r.findLocked(userID)
	r.mu.RUnlock()

	if !ok {
		return DroppedOffline
	}
	if !e.client.Enqueue(env) {
		return DroppedQueueFull
	}
	return Delivered
}

// Broadcast queues env on every live connection and returns how many
// connections accepted it and how many dropped it.
func (r *Registry) Broadcast(env v1.Envelope) (delivered, dropped int) {
	for _, p := range r.Snapshot() {
		if p.Client.Enqueue(env) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}
