package identity

import (
	"context"
	"strings"
	"time"
)

// Account is a registered Parley user. It never carries the password hash.
type Account struct {
	ID         string
	Email      string
	Username   string
	Interests  []string
	LastActive time.Time
	CreatedAt  time.Time

	// Profile is nil until the user creates one.
	Profile *Profile
}

// AccountAuth pairs an account with its stored password hash for login checks.
type AccountAuth struct {
	Account      Account
	PasswordHash string
}

// CreateAccountInput describes a registration. PasswordHash is produced by
// the password package before the store is called.
type CreateAccountInput struct {
	Email        string
	Username     string
	PasswordHash string
	Interests    []string
	Now          time.Time
}

// Store is the account persistence boundary.
type Store interface {
	// CreateAccount inserts a new account. Email and username are unique
	// case-insensitively; a clash returns ConflictError{Field}.
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)

	// GetAuthByIdentifier resolves an email or username to the account and its hash.
	GetAuthByIdentifier(ctx context.Context, identifier string) (AccountAuth, error)

	GetByID(ctx context.Context, id string) (Account, error)
	Exists(ctx context.Context, id string) (bool, error)

	// TouchLastActive records presence activity.
	TouchLastActive(ctx context.Context, id string, at time.Time) error

	// UpsertProfile creates or updates the profile of account id and returns
	// the stored profile. A missing account is NotFoundError{Resource: "account"}.
	UpsertProfile(ctx context.Context, id string, in ProfileInput, mode ProfileMode) (Profile, error)

	// UpdateInterests replaces the interest list and returns it normalized.
	UpdateInterests(ctx context.Context, id string, interests []string) ([]string, error)
}

// prepared is a validated, normalized CreateAccountInput shared by all stores.
type prepared struct {
	id           string
	email        string
	emailNorm    string
	username     string
	usernameNorm string
	interests    []string
	passwordHash string
	now          time.Time
}

func prepareCreate(op string, in CreateAccountInput) (prepared, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)

	if err := ValidateEmail(email); err != nil {
		return prepared{}, invalid(op, "invalid email")
	}
	if err := ValidateUsername(username); err != nil {
		return prepared{}, invalid(op, "invalid username")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return prepared{}, invalid(op, "password hash is required")
	}
	interests, err := normalizeInterests(in.Interests)
	if err != nil {
		return prepared{}, invalid(op, "invalid interests")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	id, err := NewULID(now)
	if err != nil {
		return prepared{}, err
	}

	return prepared{
		id:           id,
		email:        email,
		emailNorm:    NormalizeEmail(email),
		username:     username,
		usernameNorm: NormalizeUsername(username),
		interests:    interests,
		passwordHash: in.PasswordHash,
		now:          now,
	}, nil
}

func (p prepared) account() Account {
	return Account{
		ID:         p.id,
		Email:      p.email,
		Username:   p.username,
		Interests:  append([]string(nil), p.interests...),
		LastActive: p.now,
		CreatedAt:  p.now,
	}
}
