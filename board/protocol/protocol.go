// Package protocol implements the message envelope spoken on realtime board
// connections.
//
// Every frame, in both directions, is one JSON object:
//
//	{"type": "join"|"update", "payload": {...}, "sessionId": "...", "guestName": "..."}
//
// Clients send "join" once per connection and "update" whenever they change
// the board. The server only ever sends "update", carrying either a full
// snapshot (in reply to a join) or another participant's payload verbatim.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message types
const (
	TypeJoin   = "join"
	TypeUpdate = "update"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Envelope is the outer structure of every message
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	GuestName string          `json:"guestName,omitempty"`
}

// JoinPayload is the payload of a join message
type JoinPayload struct {
	GuestName string `json:"guestName"`
}

// Decode parses a frame and checks its type.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeJoin, TypeUpdate:
		return &env, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// JoinName returns the guest name carried by a join, preferring the payload
// over the top-level field. Surrounding whitespace is dropped.
func (e *Envelope) JoinName() string {
	if len(e.Payload) > 0 {
		var p JoinPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			if name := strings.TrimSpace(p.GuestName); name != "" {
				return name
			}
		}
	}
	return strings.TrimSpace(e.GuestName)
}

const updatePrefix = `{"type":"` + TypeUpdate + `","payload":`

// EncodeUpdate wraps an already-encoded payload in an update envelope. The
// payload bytes are copied as they are, without re-encoding or escaping.
func EncodeUpdate(payload json.RawMessage) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrMalformed)
	}
	msg := make([]byte, 0, len(updatePrefix)+len(payload)+1)
	msg = append(msg, updatePrefix...)
	msg = append(msg, payload...)
	return append(msg, '}'), nil
}

// EncodeUpdateOf marshals v and wraps it in an update envelope.
func EncodeUpdateOf(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal update payload: %w", err)
	}
	return EncodeUpdate(bytes.TrimRight(buf.Bytes(), "\n"))
}

// EncodeJoin builds the join frame a client sends after connecting.
func EncodeJoin(sessionID, guestName string) ([]byte, error) {
	payload, err := json.Marshal(JoinPayload{GuestName: guestName})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      TypeJoin,
		Payload:   payload,
		SessionID: sessionID,
		GuestName: guestName,
	})
}
