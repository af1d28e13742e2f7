package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertKind tags the variant carried by UpsertData.
type UpsertKind string

const (
	UpsertSend   UpsertKind = "send"
	UpsertDelete UpsertKind = "delete"
	UpsertUpdate UpsertKind = "update"
)

// ChatMessage is the wire shape of a stored chat message.
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Receiver  string    `json:"receiver,omitempty"`
	Message   string    `json:"message,omitempty"`
	Image     string    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Read      bool      `json:"read"`
	IsDeleted bool      `json:"is_deleted"`
}

// Upsert is a closed set of message changes: SendUpsert, DeleteUpsert, UpdateUpsert.
type Upsert interface {
	Kind() UpsertKind
	isUpsert()
}

// SendUpsert announces a new message.
type SendUpsert struct {
	Chat ChatMessage
}

// DeleteUpsert announces that MessageID was deleted.
type DeleteUpsert struct {
	MessageID string
}

// UpdateUpsert announces that MessageID now has the content in Chat.
type UpdateUpsert struct {
	MessageID string
	Chat      ChatMessage
}

func (SendUpsert) Kind() UpsertKind   { return UpsertSend }
func (DeleteUpsert) Kind() UpsertKind { return UpsertDelete }
func (UpdateUpsert) Kind() UpsertKind { return UpsertUpdate }

func (SendUpsert) isUpsert()   {}
func (DeleteUpsert) isUpsert() {}
func (UpdateUpsert) isUpsert() {}

// Match dispatches u to the handler for its variant. Every variant needs a
// handler, so adding a variant breaks all call sites at compile time.
func Match[T any](
	u Upsert,
	onSend func(SendUpsert) T,
	onDelete func(DeleteUpsert) T,
	onUpdate func(UpdateUpsert) T,
) T {
	switch v := u.(type) {
	case SendUpsert:
		return onSend(v)
	case *SendUpsert:
		return onSend(*v)
	case DeleteUpsert:
		return onDelete(v)
	case *DeleteUpsert:
		return onDelete(*v)
	case UpdateUpsert:
		return onUpdate(v)
	case *UpdateUpsert:
		return onUpdate(*v)
	default:
		panic(fmt.Sprintf("v1: unknown upsert variant %T", u))
	}
}

// UpsertData is the tagged wire form {"type": ..., "data": ...} of an Upsert.
//
//	send:   {"type":"send",   "data": ChatMessage}
//	delete: {"type":"delete", "data": "<message id>"}
//	update: {"type":"update", "data": {"id": "<message id>", "chat": ChatMessage}}
type UpsertData struct {
	Upsert Upsert
}

type upsertWire struct {
	Type UpsertKind      `json:"type"`
	Data json.RawMessage `json:"data"`
}

type updateWire struct {
	ID   string      `json:"id"`
	Chat ChatMessage `json:"chat"`
}

var errEmptyUpsert = errors.New("empty upsert")

// MarshalJSON encodes the tagged form.
func (d UpsertData) MarshalJSON() ([]byte, error) {
	if d.Upsert == nil {
		return nil, errEmptyUpsert
	}

	data := Match(d.Upsert,
		func(s SendUpsert) any { return s.Chat },
		func(del DeleteUpsert) any { return del.MessageID },
		func(u UpdateUpsert) any { return updateWire{ID: u.MessageID, Chat: u.Chat} },
	)
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(upsertWire{Type: d.Upsert.Kind(), Data: raw})
}

// UnmarshalJSON decodes the tagged form and rejects unknown tags.
func (d *UpsertData) UnmarshalJSON(b []byte) error {
	var w upsertWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	data := bytes.TrimSpace(w.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("upsert: missing data")
	}

	switch w.Type {
	case UpsertSend:
		var chat ChatMessage
		if err := json.Unmarshal(data, &chat); err != nil {
			return fmt.Errorf("upsert send: %w", err)
		}
		d.Upsert = SendUpsert{Chat: chat}
	case UpsertDelete:
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("upsert delete: %w", err)
		}
		if strings.TrimSpace(id) == "" {
			return errors.New("upsert delete: missing id")
		}
		d.Upsert = DeleteUpsert{MessageID: id}
	case UpsertUpdate:
		var u updateWire
		if err := json.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("upsert update: %w", err)
		}
		if strings.TrimSpace(u.ID) == "" {
			return errors.New("upsert update: missing id")
		}
		d.Upsert = UpdateUpsert{MessageID: u.ID, Chat: u.Chat}
	default:
		return fmt.Errorf("upsert: unknown type %q", w.Type)
	}
	return nil
}
