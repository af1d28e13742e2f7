package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is a known token kind.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claim is the identity carried by a token. It is immutable once issued.
type Claim struct {
	Subject   string
	Username  string
	Kind      Kind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Username string `json:"username,omitempty"`
	Kind     Kind   `json:"kind"`
	jwt.RegisteredClaims
}

const signingAlg = "HS256"

// Codec signs and verifies tokens with a single process-wide secret.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIssuer sets the iss claim on issued tokens and requires it on verify.
func WithIssuer(iss string) Option {
	return func(c *Codec) { c.issuer = strings.TrimSpace(iss) }
}

// NewCodec builds a Codec. The secret is copied.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrSecretMissing
	}
	if len(secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Issue signs claim with expiry now+ttl and returns the token together with
// the claim as it was encoded (ID, IssuedAt and ExpiresAt filled in).
func (c *Codec) Issue(claim Claim, ttl time.Duration) (string, Claim, error) {
	if ttl <= 0 {
		return "", Claim{}, ErrInvalidTTL
	}
	if strings.TrimSpace(claim.Subject) == "" {
		return "", Claim{}, errors.New("token: subject required")
	}
	if !claim.Kind.Valid() {
		return "", Claim{}, fmt.Errorf("token: invalid kind %q", claim.Kind)
	}

	now := c.now().UTC()
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(ttl))
	claim.IssuedAt = iat.Time
	claim.ExpiresAt = exp.Time

	tc := tokenClaims{
		Username: claim.Username,
		Kind:     claim.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claim.Subject,
			Issuer:    c.issuer,
			ID:        claim.ID,
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(c.secret)
	if err != nil {
		return "", Claim{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, claim, nil
}

// Verify checks the signature and expiry of raw and returns its claim.
// A token is valid while now < exp.
func (c *Codec) Verify(raw string) (Claim, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claim{}, ErrInvalidSignature
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingAlg}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var tc tokenClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claim{}, ErrExpired
		}
		return Claim{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	claim, err := claimFrom(tc)
	if err != nil {
		return Claim{}, err
	}
	return claim, nil
}

// DecodeExpiry returns the exp of raw without verifying its signature.
// Use it only to size revocation records for tokens already verified.
func (c *Codec) DecodeExpiry(raw string) (time.Time, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), &tc); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if tc.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp", ErrInvalidSignature)
	}
	return tc.ExpiresAt.Time, nil
}

// Remaining returns how long raw stays valid, clamped at zero.
func (c *Codec) Remaining(raw string) (time.Duration, error) {
	exp, err := c.DecodeExpiry(raw)
	if err != nil {
		return 0, err
	}
	d := exp.Sub(c.now())
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

func claimFrom(tc tokenClaims) (Claim, error) {
	if strings.TrimSpace(tc.Subject) == "" {
		return Claim{}, fmt.Errorf("%w: missing sub", ErrInvalidSignature)
	}
	if !tc.Kind.Valid() {
		return Claim{}, fmt.Errorf("%w: unknown kind", ErrInvalidSignature)
	}

	claim := Claim{
		Subject:  tc.Subject,
		Username: tc.Username,
		Kind:     tc.Kind,
		ID:       tc.ID,
	}
	if tc.IssuedAt != nil {
		claim.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		claim.ExpiresAt = tc.ExpiresAt.Time
	}
	return claim, nil
}
