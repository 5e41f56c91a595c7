// Package protocol defines the relay's wire envelope and message type
// constants.
//
// Every frame on the transport is a UTF-8 JSON object of the form
//
//	{"type": "<string>", "payload": {...}}
//
// The envelope is deliberately thin: the type tag selects a handler in
// the dispatcher, and the payload stays raw until the handler decodes
// it into its command-specific shape.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types (peer -> server).
const (
	TypeHostInit     = "host:init"
	TypeHostResume   = "host:resume"
	TypeHostState    = "host:state"
	TypeHostInterval = "host:interval"
	TypeHostShutdown = "host:shutdown"
	TypeClientJoin   = "client:join"
	TypeClientRoutes = "client:routes"
	TypeLocation     = "participant:location"
	TypeChatMessage  = "participant:message"
	TypeHeartbeat    = "participant:heartbeat"
)

// Outbound message types (server -> peer).
const (
	TypeSessionReady      = "session:ready"
	TypeSessionPeerJoined = "session:peer-joined"
	TypeSessionPeerLeft   = "session:peer-left"
	TypeSessionLocation   = "session:location"
	TypeSessionPeerRoutes = "session:peer-routes"
	TypeSessionState      = "session:state"
	TypeSessionInterval   = "session:interval"
	TypeSessionHostStatus = "session:host-status"
	TypeSessionHeartbeat  = "session:heartbeat"
	TypeSessionMessage    = "session:message"
	TypeSessionEnded      = "session:ended"
	TypeSessionError      = "session:error"
)

// Sentinel errors for envelope handling.
var (
	// ErrEmptyType indicates an envelope without a type tag.
	ErrEmptyType = errors.New("message type must not be empty")

	// ErrInvalidEnvelope indicates a frame that is not a JSON envelope.
	ErrInvalidEnvelope = errors.New("invalid message envelope")
)

// Message is the wire envelope. Payload stays raw until a handler
// decodes it; an absent payload decodes every command shape to its
// zero value.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope with the payload marshaled in place.
func NewMessage(typ string, payload any) (*Message, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}
	m := &Message{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		m.Payload = raw
	}
	return m, nil
}

// ParsePayload decodes the raw payload into v. A nil payload leaves v
// untouched.
func (m *Message) ParsePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("parse %s payload: %w", m.Type, err)
	}
	return nil
}

// Encode serializes a complete outbound frame. The returned byte slice
// is the exact wire form; byte accounting is measured on it.
func Encode(typ string, payload any) ([]byte, error) {
	m, err := NewMessage(typ, payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", typ, err)
	}
	return data, nil
}

// Decode parses an inbound frame into an envelope. The payload is kept
// raw for the dispatcher.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, ErrEmptyType)
	}
	return &m, nil
}
