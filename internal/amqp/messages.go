package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"expensio/internal/core"
)

// SessionEventMessage is the wire form of a core.SessionEvent.
type SessionEventMessage struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role,omitempty"`
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSessionEventMessage(ev core.SessionEvent) *SessionEventMessage {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &SessionEventMessage{
		ID:        ev.ID,
		Type:      string(ev.Type),
		Username:  ev.Username,
		Role:      string(ev.Role),
		ClientID:  ev.ClientID,
		Timestamp: ts,
	}
}

// Event converts the message back to the domain type.
func (m *SessionEventMessage) Event() core.SessionEvent {
	return core.SessionEvent{
		ID:        m.ID,
		Type:      core.SessionEventType(m.Type),
		Username:  m.Username,
		Role:      core.Role(m.Role),
		ClientID:  m.ClientID,
		Timestamp: m.Timestamp,
	}
}

func (m *SessionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SessionEventMessageFromJSON rejects messages without an id or with an
// unknown type.
func SessionEventMessageFromJSON(data []byte) (*SessionEventMessage, error) {
	var msg SessionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("session event without id")
	}
	if !core.SessionEventType(msg.Type).IsValid() {
		return nil, errors.New("unknown session event type " + msg.Type)
	}
	return &msg, nil
}
