// Package v1 defines the Parley realtime protocol v1 contract.
//
// It is shared between the server and clients so the wire format has a single
// authoritative definition.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Event types (wire-stable).
const (
	// TypeUserConnected announces a newly authenticated peer (server -> all).
	TypeUserConnected = "userConnected"
	// TypeUserDisconnected announces a peer that went away (server -> all).
	TypeUserDisconnected = "userDisconnected"
	// TypeStatusUpdated carries a peer's typing state (server -> one or all).
	TypeStatusUpdated = "statusUpdated"
	// TypeMessageUpsert forwards a message change (server -> receiver).
	TypeMessageUpsert = "messageUpsert"

	// TypeUpdateStatus asks the server to relay a typing state (client -> server).
	TypeUpdateStatus = "updateStatus"
	// TypeUpsertMessage asks the server to relay a message change (client -> server).
	TypeUpsertMessage = "upsertMessage"
)

// Status is a peer's displayed activity state.
type Status string

const (
	StatusTyping Status = "Typing"
	StatusIdle   Status = "Idle"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusTyping || s == StatusIdle
}

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitzero"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation of an inbound envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeUserConnected,
		TypeUserDisconnected,
		TypeStatusUpdated,
		TypeMessageUpsert,
		TypeUpdateStatus,
		TypeUpsertMessage:
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}

	if len(e.Payload) == 0 {
		return errors.New("missing field: payload")
	}
	return nil
}

// ---- Payloads ----

// PresencePayload is carried by userConnected and userDisconnected.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// StatusUpdatedPayload tells a client that UserID changed status.
type StatusUpdatedPayload struct {
	UserID string `json:"userId"`
	Status Status `json:"status"`
}

// MessageUpsertPayload forwards a message change made by UserID.
type MessageUpsertPayload struct {
	UserID string     `json:"userId"`
	Data   UpsertData `json:"data"`
}

// UpdateStatusPayload is sent by a client to relay its status to ReceiverID.
type UpdateStatusPayload struct {
	ReceiverID string `json:"receiverId"`
	Status     Status `json:"status"`
}

// UpsertMessagePayload is sent by a client to relay a message change to ReceiverID.
type UpsertMessagePayload struct {
	ReceiverID string     `json:"receiverId"`
	Data       UpsertData `json:"data"`
}
