package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"parley/cmd/identity"
)

// PostgresStore implements Store over the messages table created by the
// embedded migrations. The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: identity.DefaultSchema).
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !identity.PgIdentIsValid(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: identity.DefaultSchema,
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
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

const messageColumns = `id, sender_id, receiver_id, body, COALESCE(image, ''), sent_at, edited_at, read, is_deleted`

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "messages"}.Sanitize()
}

func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Message, error) {
	const op = "chat.Create"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m, err := prepareCreate(op, in)
	if err != nil {
		return Message{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, sender_id, receiver_id, body, image, sent_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		m.ID, m.SenderID, m.ReceiverID, m.Body, m.Image, m.SentAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return Message{}, fmt.Errorf("%s: %w: participant", op, ErrNotFound)
		}
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

func (s *PostgresStore) Conversation(ctx context.Context, userID, peerID string) ([]Message, error) {
	const op = "chat.Conversation"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID, peerID = strings.TrimSpace(userID), strings.TrimSpace(peerID)
	messages := s.table()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE `+messages+`
		    SET read = true
		  WHERE sender_id = $1 AND receiver_id = $2
		    AND read = false AND is_deleted = false`,
		peerID, userID,
	); err != nil {
		return nil, fmt.Errorf("%s: mark read: %w", op, err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+messageColumns+`
		   FROM `+messages+`
		  WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		    AND is_deleted = false
		  ORDER BY sent_at ASC, id ASC`,
		userID, peerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := collectMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Message, error) {
	const op = "chat.Get"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM `+s.table()+` WHERE id = $1 AND is_deleted = false`,
		strings.TrimSpace(id),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, notFound(op)
		}
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

func (s *PostgresStore) Edit(ctx context.Context, in EditInput) (Message, error) {
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

	return s.mutateOwned(ctx, op, in.ID, in.EditorID,
		`UPDATE `+s.table()+` SET body = $2, edited_at = $3 WHERE id = $1
		 RETURNING `+messageColumns,
		body, now.UTC().Truncate(time.Microsecond),
	)
}

func (s *PostgresStore) Delete(ctx context.Context, id, editorID string) (Message, error) {
	const op = "chat.Delete"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	return s.mutateOwned(ctx, op, id, editorID,
		`UPDATE `+s.table()+` SET is_deleted = true WHERE id = $1
		 RETURNING `+messageColumns,
	)
}

// mutateOwned locks message id, checks it is visible and sent by editorID,
// then runs update with $1 bound to id followed by args.
func (s *PostgresStore) mutateOwned(ctx context.Context, op, id, editorID, update string, args ...any) (Message, error) {
	id = strings.TrimSpace(id)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Message{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sender string
	err = tx.QueryRow(ctx,
		`SELECT sender_id FROM `+s.table()+` WHERE id = $1 AND is_deleted = false FOR UPDATE`,
		id,
	).Scan(&sender)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, notFound(op)
		}
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	if sender != strings.TrimSpace(editorID) {
		return Message{}, forbidden(op)
	}

	m, err := scanMessage(tx.QueryRow(ctx, update, append([]any{id}, args...)...))
	if err != nil {
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return m, nil
}

func (s *PostgresStore) Threads(ctx context.Context, userID string) ([]Thread, error) {
	const op = "chat.Threads"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (peer) peer, `+messageColumns+`
		   FROM (
		     SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer, *
		       FROM `+s.table()+`
		      WHERE (sender_id = $1 OR receiver_id = $1) AND is_deleted = false
		   ) t
		  ORDER BY peer, sent_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]Thread, 0)
	for rows.Next() {
		var t Thread
		if err := scanInto(rows, &t.Last, &t.PeerID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sortThreads(out)
	return out, nil
}

// ---- helpers ----

func collectMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := scanInto(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := scanInto(row, &m)
	return m, err
}

// scanInto scans messageColumns into m, preceded by any lead destinations.
func scanInto(row pgx.Row, m *Message, lead ...any) error {
	var edited *time.Time
	dest := make([]any, 0, len(lead)+9)
	dest = append(dest, lead...)
	dest = append(dest,
		&m.ID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Body,
		&m.Image,
		&m.SentAt,
		&edited,
		&m.Read,
		&m.IsDeleted,
	)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	m.SentAt = m.SentAt.UTC()
	if edited != nil {
		m.EditedAt = edited.UTC()
	}
	return nil
}
