package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"parley/cmd/identity/ids"
)

// MaxBodyLen bounds a message body in characters.
const MaxBodyLen = 4000

var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	// ErrForbidden is returned when a caller edits or deletes a message it did not send.
	ErrForbidden = errors.New("forbidden")
)

// Message is a stored direct message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Body       string
	Image      string
	SentAt     time.Time
	EditedAt   time.Time
	Read       bool
	IsDeleted  bool
}

// Thread is one conversation partner of a user with the latest visible message.
type Thread struct {
	PeerID string
	Last   Message
}

// CreateInput describes a new message.
type CreateInput struct {
	SenderID   string
	ReceiverID string
	Body       string
	Image      string
	Now        time.Time
}

// EditInput replaces the body of message ID on behalf of EditorID.
type EditInput struct {
	ID       string
	EditorID string
	Body     string
	Now      time.Time
}

// Store persists messages.
//
// Soft-deleted messages are never returned by Conversation or Threads, and
// Edit and Delete treat them as missing.
type Store interface {
	Create(ctx context.Context, in CreateInput) (Message, error)

	// Conversation marks every unread message from peerID to userID as read,
	// then returns the visible messages between them ordered by SentAt ascending.
	Conversation(ctx context.Context, userID, peerID string) ([]Message, error)

	Get(ctx context.Context, id string) (Message, error)
	Edit(ctx context.Context, in EditInput) (Message, error)
	Delete(ctx context.Context, id, editorID string) (Message, error)

	// Threads lists userID's conversation partners, newest last message first.
	Threads(ctx context.Context, userID string) ([]Thread, error)
}

func validateBody(op, body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%s: %w: empty message", op, ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > MaxBodyLen {
		return "", fmt.Errorf("%s: %w: message too long", op, ErrInvalidInput)
	}
	return body, nil
}

// prepareCreate validates in and assigns the id and timestamp shared by all stores.
func prepareCreate(op string, in CreateInput) (Message, error) {
	sender := strings.TrimSpace(in.SenderID)
	receiver := strings.TrimSpace(in.ReceiverID)
	if sender == "" || receiver == "" {
		return Message{}, fmt.Errorf("%s: %w: missing participant", op, ErrInvalidInput)
	}
	if sender == receiver {
		return Message{}, fmt.Errorf("%s: %w: cannot message yourself", op, ErrInvalidInput)
	}
	body, err := validateBody(op, in.Body)
	if err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Microsecond)

	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, fmt.Errorf("%s: id: %w", op, err)
	}
	return Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Body:       body,
		Image:      strings.TrimSpace(in.Image),
		SentAt:     now,
	}, nil
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w: message", op, ErrNotFound)
}

func forbidden(op string) error {
	return fmt.Errorf("%s: %w", op, ErrForbidden)
}
