package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with lazy and periodic expiry.
// It suits single-process deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]time.Time
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a MemoryStore. When sweepEvery > 0 a background
// goroutine drops expired records until Close is called.
func NewMemoryStore(sweepEvery time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	}
	return s
}

func (s *MemoryStore) MarkRevoked(ctx context.Context, raw string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ttl <= 0 {
		return nil
	}

	key := Key("", raw)
	exp := s.now().Add(ttl)

	s.mu.Lock()
	if cur, ok := s.records[key]; !ok || exp.After(cur) {
		s.records[key] = exp
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Consume(ctx context.Context, raw string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ttl <= 0 {
		return false, nil
	}

	key := Key("", raw)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.records[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.records[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) IsRevoked(ctx context.Context, raw string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	key := Key("", raw)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.records[key]
	if !ok {
		return false, nil
	}
	if !now.Before(exp) {
		delete(s.records, key)
		return false, nil
	}
	return true, nil
}

// Len returns the number of records, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep drops expired records and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, exp := range s.records {
		if !now.Before(exp) {
			delete(s.records, k)
			n++
		}
	}
	return n
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
