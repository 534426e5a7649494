// Package message defines the wire message type exchanged with clients.
// A message is a single JSON object; the optional "type" field selects
// special handling (KEEP_ALIVE refreshes liveness, SOFTWARE_ERROR marks
// synthetic reports the server itself constructs).
package message

import (
	"encoding/json"
	"errors"
)

// Distinguished message types. Any other value of the "type" field, or no
// "type" field at all, is an ordinary message delivered to the consumer
// untouched.
const (
	TypeKeepAlive     = "KEEP_ALIVE"
	TypeSoftwareError = "SOFTWARE_ERROR"
)

// Message is one decoded wire object. Type is the value of the object's
// "type" field if present and a string, otherwise empty. Data holds the
// full decoded object.
type Message struct {
	Type string
	Data map[string]any
}

// Decode parses a single JSON object into a Message. It is a pure
// function: the same bytes always produce the same result.
//
// Parameters:
//   - b: The raw frame bytes (one brace-balanced object)
//
// Returns:
//   - The decoded Message
//   - An error if b is not a valid JSON object
func Decode(b []byte) (Message, error) {
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return Message{}, err
	}
	if data == nil {
		// JSON null unmarshals into a nil map without error.
		return Message{}, errors.New("message is not a JSON object")
	}

	msg := Message{Data: data}
	if t, ok := data["type"].(string); ok {
		msg.Type = t
	}

	return msg, nil
}

// SoftwareError synthesizes a SOFTWARE_ERROR message carrying the given
// reason. The server uses it to report connection-level events (decode
// failures, remote closes, liveness timeouts) through the same ingress
// path as wire messages.
//
// Parameters:
//   - reason: Human-readable description of the event
//
// Returns:
//   - A Message of type SOFTWARE_ERROR
func SoftwareError(reason string) Message {
	return Message{
		Type: TypeSoftwareError,
		Data: map[string]any{
			"type":   TypeSoftwareError,
			"reason": reason,
		},
	}
}

// IsKeepAlive reports whether the message is a KEEP_ALIVE pulse.
func (m Message) IsKeepAlive() bool {
	return m.Type == TypeKeepAlive
}

// IsSoftwareError reports whether the message is a synthetic error report.
func (m Message) IsSoftwareError() bool {
	return m.Type == TypeSoftwareError
}

// Reason returns the reason string of a software error message, or ""
// for any other message.
func (m Message) Reason() string {
	if !m.IsSoftwareError() {
		return ""
	}

	reason, _ := m.Data["reason"].(string)
	return reason
}
