package core

import "time"

const (
	SessionLogin    SessionEventType = "login"
	SessionRegister SessionEventType = "register"
	SessionLogout   SessionEventType = "logout"
)

type SessionEventType string

// SessionEvent records a successful session mutation for one client.
type SessionEvent struct {
	ID        string           `json:"id"`
	Type      SessionEventType `json:"type"`
	Username  string           `json:"username,omitempty"`
	Role      Role             `json:"role,omitempty"`
	ClientID  string           `json:"client_id"`
	Timestamp time.Time        `json:"timestamp"`
}

func (t SessionEventType) IsValid() bool {
	switch t {
	case SessionLogin, SessionRegister, SessionLogout:
		return true
	}
	return false
}
