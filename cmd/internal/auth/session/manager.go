package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/revocation"
	"parley/cmd/security/token"
)

// AccountDirectory is the slice of identity.Store the manager needs.
type AccountDirectory interface {
	GetAuthByIdentifier(ctx context.Context, identifier string) (identity.AccountAuth, error)
	GetByID(ctx context.Context, id string) (identity.Account, error)
}

// PasswordVerifier checks secrets against stored hashes (password.Config).
type PasswordVerifier interface {
	Verify(encodedHash, password string) (bool, error)
	VerifyNothing(password string)
}

// Pair is an issued access + refresh token pair.
type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Manager implements login, refresh rotation, logout and authentication checks.
type Manager struct {
	cfg       Config
	codec     *token.Codec
	revoked   revocation.Store
	accounts  AccountDirectory
	passwords PasswordVerifier

	log     *slog.Logger
	now     func() time.Time
	metrics *metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for internal failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides the time source. It must match the codec's clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics registers outcome counters on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = newMetrics(reg) }
}

// NewManager wires a Manager. All collaborators are required.
func NewManager(
	cfg Config,
	codec *token.Codec,
	revoked revocation.Store,
	accounts AccountDirectory,
	passwords PasswordVerifier,
	opts ...Option,
) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if codec == nil || revoked == nil || accounts == nil || passwords == nil {
		return nil, ErrConfig
	}

	m := &Manager{
		cfg:       cfg,
		codec:     codec,
		revoked:   revoked,
		accounts:  accounts,
		passwords: passwords,
		log:       slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.metrics == nil {
		m.metrics = newMetrics(nil)
	}
	return m, nil
}

// Login resolves identifier (email or username), checks secret and issues a pair.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (pair Pair, err error) {
	defer func() { m.metrics.observe("login", err) }()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return Pair{}, ErrInvalidCredentials
	}

	auth, err := m.accounts.GetAuthByIdentifier(ctx, identifier)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			m.passwords.VerifyNothing(secret)
			return Pair{}, ErrInvalidCredentials
		}
		m.log.Error("auth.login.lookup_fail", "err", err)
		return Pair{}, ErrInternal
	}

	ok, err := m.passwords.Verify(auth.PasswordHash, secret)
	if err != nil {
		m.log.Error("auth.login.hash_invalid", "user_id", auth.Account.ID, "err", err)
		return Pair{}, ErrInternal
	}
	if !ok {
		return Pair{}, ErrInvalidCredentials
	}

	return m.issuePair(auth.Account)
}

// Refresh rotates a refresh token: the presented token is revoked for its
// remaining life before the new pair is returned, so it works at most once.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (pair Pair, err error) {
	defer func() { m.metrics.observe("refresh", err) }()

	claim, err := m.verify(ctx, refreshToken, token.KindRefresh)
	if err != nil {
		return Pair{}, err
	}

	acc, err := m.accounts.GetByID(ctx, claim.Subject)
	if err != nil {
		if identity.IsNotFound(err) {
			return Pair{}, ErrSubjectNotFound
		}
		m.log.Error("auth.refresh.lookup_fail", "user_id", claim.Subject, "err", err)
		return Pair{}, ErrInternal
	}

	next, err := m.issuePair(acc)
	if err != nil {
		return Pair{}, err
	}

	first, err := m.revoked.Consume(ctx, refreshToken, m.remaining(claim))
	if err != nil {
		m.log.Error("auth.refresh.revoke_fail", "user_id", claim.Subject, "err", err)
		return Pair{}, ErrInternal
	}
	if !first {
		// Lost a race with a concurrent refresh of the same token.
		return Pair{}, ErrInvalidOrExpired
	}
	return next, nil
}

// EndSession revokes raw (access or refresh) for its remaining life.
func (m *Manager) EndSession(ctx context.Context, raw string) (err error) {
	defer func() { m.metrics.observe("end_session", err) }()

	claim, err := m.codec.Verify(raw)
	if err != nil {
		return ErrInvalidOrExpired
	}

	if err := m.revoked.MarkRevoked(ctx, raw, m.remaining(claim)); err != nil {
		m.log.Error("auth.logout.revoke_fail", "user_id", claim.Subject, "err", err)
		return ErrStoreUnavailable
	}
	return nil
}

// IsAuthenticated verifies an access token and checks it was not revoked.
// The REST boundary and the websocket handshake share this decision.
func (m *Manager) IsAuthenticated(ctx context.Context, accessToken string) (claim token.Claim, err error) {
	defer func() { m.metrics.observe("authenticate", err) }()

	return m.verify(ctx, accessToken, token.KindAccess)
}

func (m *Manager) verify(ctx context.Context, raw string, kind token.Kind) (token.Claim, error) {
	claim, err := m.codec.Verify(raw)
	if err != nil {
		return token.Claim{}, ErrInvalidOrExpired
	}
	if claim.Kind != kind {
		return token.Claim{}, ErrInvalidOrExpired
	}

	revoked, err := m.revoked.IsRevoked(ctx, raw)
	if err != nil {
		if !errors.Is(err, revocation.ErrStoreUnavailable) {
			m.log.Error("auth.revocation.check_fail", "err", err)
		}
		return token.Claim{}, ErrStoreUnavailable
	}
	if revoked {
		return token.Claim{}, ErrInvalidOrExpired
	}
	return claim, nil
}

func (m *Manager) issuePair(acc identity.Account) (Pair, error) {
	base := token.Claim{Subject: acc.ID, Username: acc.Username}

	access := base
	access.Kind = token.KindAccess
	accessRaw, accessClaim, err := m.codec.Issue(access, m.cfg.AccessTokenTTL)
	if err != nil {
		m.log.Error("auth.issue.fail", "kind", token.KindAccess, "err", err)
		return Pair{}, ErrInternal
	}

	refresh := base
	refresh.Kind = token.KindRefresh
	refreshRaw, refreshClaim, err := m.codec.Issue(refresh, m.cfg.RefreshTokenTTL)
	if err != nil {
		m.log.Error("auth.issue.fail", "kind", token.KindRefresh, "err", err)
		return Pair{}, ErrInternal
	}

	return Pair{
		AccessToken:  accessRaw,
		AccessExp:    accessClaim.ExpiresAt,
		RefreshToken: refreshRaw,
		RefreshExp:   refreshClaim.ExpiresAt,
	}, nil
}

// remaining is the revocation TTL for claim: time left until exp, at least one second
// so a token verified a moment before its expiry is still covered.
func (m *Manager) remaining(claim token.Claim) time.Duration {
	d := claim.ExpiresAt.Sub(m.now())
	if d < time.Second {
		return time.Second
	}
	return d
}
