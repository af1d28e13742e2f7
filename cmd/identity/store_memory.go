package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]memAccount
	byEmail    map[string]string
	byUsername map[string]string
}

type memAccount struct {
	acc          Account
	passwordHash string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]memAccount),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	p, err := prepareCreate(op, in)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[p.emailNorm]; taken {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}
	if _, taken := s.byUsername[p.usernameNorm]; taken {
		return Account{}, ConflictError{Op: op, Field: "username"}
	}

	acc := p.account()
	s.byID[acc.ID] = memAccount{acc: acc, passwordHash: p.passwordHash}
	s.byEmail[p.emailNorm] = acc.ID
	s.byUsername[p.usernameNorm] = acc.ID

	return cloneAccount(acc), nil
}

func (s *MemoryStore) GetAuthByIdentifier(ctx context.Context, identifier string) (AccountAuth, error) {
	const op = "identity.GetAuthByIdentifier"

	if err := ctx.Err(); err != nil {
		return AccountAuth{}, err
	}
	key := NormalizeIdentifier(identifier)
	if key == "" {
		return AccountAuth{}, invalid(op, "missing identifier")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[key]
	if !ok {
		id, ok = s.byUsername[key]
	}
	if !ok {
		return AccountAuth{}, NotFoundError{Op: op, Resource: "account"}
	}
	rec := s.byID[id]
	return AccountAuth{Account: cloneAccount(rec.acc), PasswordHash: rec.passwordHash}, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return cloneAccount(rec.acc), nil
}

func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byID[strings.TrimSpace(id)]
	return ok, nil
}

func (s *MemoryStore) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	const op = "identity.TouchLastActive"

	if err := ctx.Err(); err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	rec.acc.LastActive = at.UTC()
	s.byID[rec.acc.ID] = rec
	return nil
}

func (s *MemoryStore) UpsertProfile(ctx context.Context, id string, in ProfileInput, mode ProfileMode) (Profile, error) {
	const op = "identity.UpsertProfile"

	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	p, err := prepareProfile(op, in)
	if err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Profile{}, NotFoundError{Op: op, Resource: "account"}
	}
	switch {
	case mode == ProfileCreate && rec.acc.Profile != nil:
		return Profile{}, ConflictError{Op: op, Field: "profile"}
	case mode == ProfileUpdate && rec.acc.Profile == nil:
		return Profile{}, NotFoundError{Op: op, Resource: "profile"}
	}

	p = p.merge(rec.acc.Profile)
	rec.acc.Profile = &p
	s.byID[rec.acc.ID] = rec
	return p, nil
}

func (s *MemoryStore) UpdateInterests(ctx context.Context, id string, interests []string) ([]string, error) {
	const op = "identity.UpdateInterests"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm, err := normalizeInterests(interests)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, NotFoundError{Op: op, Resource: "account"}
	}
	rec.acc.Interests = norm
	s.byID[rec.acc.ID] = rec
	return append([]string{}, norm...), nil
}

func cloneAccount(a Account) Account {
	a.Interests = append([]string(nil), a.Interests...)
	a.Profile = cloneProfile(a.Profile)
	return a
}
