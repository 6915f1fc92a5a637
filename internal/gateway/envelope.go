// Package gateway implements the websocket chat protocol: envelope codec,
// per-connection stream bookkeeping and message routing.
package gateway

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/Rrens/chat-gateway/internal/domain"
)

// Inbound message types
const (
	TypePing           = "ping"
	TypeEcho           = "echo"
	TypeChatSend       = "chat.send"
	TypeChatHistory    = "chat.history"
	TypeChatList       = "chat.list"
	TypeChatCreate     = "chat.create"
	TypeChatDelete     = "chat.delete"
	TypeChatStop       = "chat.stop"
	TypeProviderConfig = "provider.config"
)

// Outbound message types
const (
	TypePong              = "pong"
	TypeError             = "error"
	TypeChatDelta         = "chat.delta"
	TypeChatDone          = "chat.done"
	TypeChatError         = "chat.error"
	TypeProviderConfigAck = "provider.config.ack"
)

// isoTime matches the millisecond ISO-8601 form clients produce
const isoTime = "2006-01-02T15:04:05.000Z07:00"

// Envelope is an inbound frame
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type outbound struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// Decode parses a raw frame. Undecodable input yields ErrInvalidEncoding
// and an envelope without type or timestamp yields ErrMissingFields.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, domain.ErrInvalidEncoding
	}
	if env.Type == "" || isNull(env.Timestamp) {
		return nil, domain.ErrMissingFields
	}
	return &env, nil
}

// Encode builds an outbound frame stamped with the current time
func Encode(typ string, payload any) ([]byte, error) {
	return json.Marshal(outbound{
		Type:      typ,
		Payload:   payload,
		Timestamp: formatTime(time.Now()),
	})
}

// decodePayload unmarshals the payload into v. An absent payload leaves v
// at its zero value.
func (e *Envelope) decodePayload(v any) error {
	if isNull(e.Payload) {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return domain.InvalidPayload(err)
	}
	return nil
}

// requestID extracts the optional correlation id of any payload
func (e *Envelope) requestID() string {
	var c struct {
		RequestID string `json:"requestId"`
	}
	if isNull(e.Payload) || e.Payload[0] != '{' {
		return ""
	}
	_ = json.Unmarshal(e.Payload, &c)
	return c.RequestID
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoTime)
}
