package chat

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]*Message
	// order holds ids in insertion order, which is SentAt order for a single clock.
	order []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Message)}
}

func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Message, error) {
	const op = "chat.Create"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m, err := prepareCreate(op, in)
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := m
	s.byID[m.ID] = &stored
	s.order = append(s.order, m.ID)
	return m, nil
}

func (s *MemoryStore) Conversation(ctx context.Context, userID, peerID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID, peerID = strings.TrimSpace(userID), strings.TrimSpace(peerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0)
	for _, id := range s.order {
		m := s.byID[id]
		if m.IsDeleted || !between(*m, userID, peerID) {
			continue
		}
		if m.ReceiverID == userID && !m.Read {
			m.Read = true
		}
		out = append(out, *m)
	}
	sortBySent(out)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Message, error) {
	const op = "chat.Get"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[strings.TrimSpace(id)]
	if !ok || m.IsDeleted {
		return Message{}, notFound(op)
	}
	return *m, nil
}

func (s *MemoryStore) Edit(ctx context.Context, in EditInput) (Message, error) {
	const op = "chat.Edit"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	body, err := validateBody(op, in.Body)
	if err != nil {
		return Message{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[strings.TrimSpace(in.ID)]
	if !ok || m.IsDeleted {
		return Message{}, notFound(op)
	}
	if m.SenderID != strings.TrimSpace(in.EditorID) {
		return Message{}, forbidden(op)
	}
	m.Body = body
	m.EditedAt = now.UTC().Truncate(time.Microsecond)
	return *m, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id, editorID string) (Message, error) {
	const op = "chat.Delete"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[strings.TrimSpace(id)]
	if !ok || m.IsDeleted {
		return Message{}, notFound(op)
	}
	if m.SenderID != strings.TrimSpace(editorID) {
		return Message{}, forbidden(op)
	}
	m.IsDeleted = true
	return *m, nil
}

func (s *MemoryStore) Threads(ctx context.Context, userID string) ([]Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	last := make(map[string]Message)
	for _, id := range s.order {
		m := s.byID[id]
		if m.IsDeleted {
			continue
		}
		var peer string
		switch userID {
		case m.SenderID:
			peer = m.ReceiverID
		case m.ReceiverID:
			peer = m.SenderID
		default:
			continue
		}
		if prev, ok := last[peer]; !ok || !m.SentAt.Before(prev.SentAt) {
			last[peer] = *m
		}
	}

	out := make([]Thread, 0, len(last))
	for peer, m := range last {
		out = append(out, Thread{PeerID: peer, Last: m})
	}
	sortThreads(out)
	return out, nil
}

func between(m Message, a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

func sortBySent(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortThreads(ts []Thread) {
	slices.SortFunc(ts, func(a, b Thread) int {
		if c := b.Last.SentAt.Compare(a.Last.SentAt); c != 0 {
			return c
		}
		return strings.Compare(b.Last.ID, a.Last.ID)
	})
}
