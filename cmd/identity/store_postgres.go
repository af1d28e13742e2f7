package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
// Schema/table identifiers are quoted; the schema itself is created by the
// embedded migrations.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema used when WithSchema is not given.
const DefaultSchema = "parley"

// WithSchema sets the Postgres schema used by the store.
// The schema name must be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !PgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// accountColumns reads from accountsFrom; profile columns are NULL when the
// account has no profile.
const accountColumns = `a.id, a.email, a.username, a.interests, a.last_active, a.created_at,
	p.display_name, p.gender, p.birthday, p.horoscope, p.zodiac, p.height, p.weight, p.image_url, p.updated_at`

const profileColumns = `display_name, gender, birthday, horoscope, zodiac, height, weight, image_url, updated_at`

func (s *PostgresStore) accountsFrom() string {
	return pgIdent(s.schema, "accounts") + ` a LEFT JOIN ` + pgIdent(s.schema, "profiles") + ` p ON p.account_id = a.id`
}

func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	p, err := prepareCreate(op, in)
	if err != nil {
		return Account{}, err
	}

	accounts := pgIdent(s.schema, "accounts")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+accounts+` (
		     id, email, email_norm, username, username_norm, interests, password_hash, last_active, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		p.id,
		p.email,
		p.emailNorm,
		p.username,
		p.usernameNorm,
		p.interests,
		p.passwordHash,
		p.now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return p.account(), nil
}

func (s *PostgresStore) GetAuthByIdentifier(ctx context.Context, identifier string) (AccountAuth, error) {
	const op = "identity.GetAuthByIdentifier"

	if err := ctx.Err(); err != nil {
		return AccountAuth{}, err
	}
	key := NormalizeIdentifier(identifier)
	if key == "" {
		return AccountAuth{}, invalid(op, "missing identifier")
	}

	var out AccountAuth
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`, a.password_hash
		   FROM `+s.accountsFrom()+`
		  WHERE a.email_norm = $1 OR a.username_norm = $1
		  LIMIT 1`,
		key,
	)
	if err := scanAccount(row, &out.Account, &out.PasswordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountAuth{}, NotFoundError{Op: op, Resource: "account"}
		}
		return AccountAuth{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	var out Account
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+s.accountsFrom()+` WHERE a.id = $1`,
		strings.TrimSpace(id),
	)
	if err := scanAccount(row, &out); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	const op = "identity.Exists"

	if err := ctx.Err(); err != nil {
		return false, err
	}

	accounts := pgIdent(s.schema, "accounts")

	var ok bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+accounts+` WHERE id = $1)`,
		strings.TrimSpace(id),
	).Scan(&ok); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

func (s *PostgresStore) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	const op = "identity.TouchLastActive"

	if err := ctx.Err(); err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}

	accounts := pgIdent(s.schema, "accounts")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+` SET last_active = $1 WHERE id = $2`,
		at.UTC(), strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, id string, in ProfileInput, mode ProfileMode) (Profile, error) {
	const op = "identity.UpsertProfile"

	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	p, err := prepareProfile(op, in)
	if err != nil {
		return Profile{}, err
	}
	id = strings.TrimSpace(id)

	profiles := pgIdent(s.schema, "profiles")
	args := []any{id, p.DisplayName, string(p.Gender), p.Birthday, string(p.Horoscope), string(p.Zodiac), p.Height, p.Weight, p.ImageURL, p.UpdatedAt}

	var row pgx.Row
	if mode == ProfileCreate {
		row = s.pool.QueryRow(ctx,
			`INSERT INTO `+profiles+` (account_id, `+profileColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (account_id) DO NOTHING
			 RETURNING `+profileColumns,
			args...,
		)
	} else {
		row = s.pool.QueryRow(ctx,
			`UPDATE `+profiles+`
			    SET display_name = $2, gender = $3, birthday = $4, horoscope = $5, zodiac = $6,
			        height = $7, weight = $8, image_url = COALESCE(NULLIF($9, ''), image_url), updated_at = $10
			  WHERE account_id = $1
			 RETURNING `+profileColumns,
			args...,
		)
	}

	var (
		out                       Profile
		gender, horoscope, zodiac string
	)
	err = row.Scan(&out.DisplayName, &gender, &out.Birthday, &horoscope, &zodiac, &out.Height, &out.Weight, &out.ImageURL, &out.UpdatedAt)
	switch {
	case err == nil:
		out.Gender = Gender(gender)
		out.Horoscope = Horoscope(horoscope)
		out.Zodiac = Zodiac(zodiac)
		out.Birthday = out.Birthday.UTC()
		out.UpdatedAt = out.UpdatedAt.UTC()
		return out, nil
	case pgIsForeignKeyViolation(err):
		return Profile{}, NotFoundError{Op: op, Resource: "account"}
	case !errors.Is(err, pgx.ErrNoRows):
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	// No row: either the account is missing or the profile state blocks mode.
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return Profile{}, NotFoundError{Op: op, Resource: "account"}
	}
	if mode == ProfileCreate {
		return Profile{}, ConflictError{Op: op, Field: "profile"}
	}
	return Profile{}, NotFoundError{Op: op, Resource: "profile"}
}

func (s *PostgresStore) UpdateInterests(ctx context.Context, id string, interests []string) ([]string, error) {
	const op = "identity.UpdateInterests"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm, err := normalizeInterests(interests)
	if err != nil {
		return nil, err
	}

	accounts := pgIdent(s.schema, "accounts")

	var out []string
	if err := s.pool.QueryRow(ctx,
		`UPDATE `+accounts+` SET interests = $1 WHERE id = $2 RETURNING interests`,
		norm, strings.TrimSpace(id),
	).Scan(&out); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundError{Op: op, Resource: "account"}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// ---- helpers ----

func scanAccount(row pgx.Row, a *Account, extra ...any) error {
	var (
		name, gender, horoscope, zodiac, image *string
		birthday, updated                      *time.Time
		height, weight                         *float64
	)
	dest := append([]any{
		&a.ID,
		&a.Email,
		&a.Username,
		&a.Interests,
		&a.LastActive,
		&a.CreatedAt,
		&name, &gender, &birthday, &horoscope, &zodiac, &height, &weight, &image, &updated,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	a.LastActive = a.LastActive.UTC()
	a.CreatedAt = a.CreatedAt.UTC()

	if name != nil {
		a.Profile = &Profile{
			DisplayName: *name,
			Gender:      Gender(deref(gender)),
			Horoscope:   Horoscope(deref(horoscope)),
			Zodiac:      Zodiac(deref(zodiac)),
			ImageURL:    deref(image),
		}
		if birthday != nil {
			a.Profile.Birthday = birthday.UTC()
		}
		if updated != nil {
			a.Profile.UpdatedAt = updated.UTC()
		}
		if height != nil {
			a.Profile.Height = *height
		}
		if weight != nil {
			a.Profile.Weight = *weight
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// PgIdentIsValid checks if a string is a safe Postgres identifier.
func PgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_accounts_username_norm", strings.Contains(c, "username"):
		return "username", true
	case c == "uq_accounts_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
