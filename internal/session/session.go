// Package session holds the authenticated session of one client: the bearer
// token, the role and the username. Every mutation is written through to a
// durable Storage before it becomes visible.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"expensio/internal/core"
)

// Fixed durable keys.
const (
	KeyToken = "token"
	KeyRole  = "role"
	KeyUser  = "user"
)

// Keys lists every durable key, in a stable order.
var Keys = []string{KeyToken, KeyRole, KeyUser}

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAlreadyExists      = errors.New("username already exists")
	ErrInvalidResponse    = errors.New("invalid login response")

	// ErrCorrupt is returned by a Storage whose durable copy cannot be
	// decoded. Open treats it as an invalid snapshot.
	ErrCorrupt = errors.New("corrupt session snapshot")
)

// Session is either empty or fully set: a token always comes with a role
// and a username.
type Session struct {
	Token    string
	Role     core.Role
	Username string
}

func (s Session) Authenticated() bool { return s.Token != "" }

func (s Session) IsAdmin() bool { return s.Authenticated() && s.Role == core.RoleAdmin }

// Snapshot is the durable form of s.
func (s Session) Snapshot() map[string]string {
	return map[string]string{
		KeyToken: s.Token,
		KeyRole:  string(s.Role),
		KeyUser:  s.Username,
	}
}

// FromSnapshot rebuilds a session from durable values. ok is false when the
// values are partial or carry an unknown role; the result is then empty.
func FromSnapshot(values map[string]string) (s Session, ok bool) {
	token, role, user := values[KeyToken], values[KeyRole], values[KeyUser]
	if token == "" && role == "" && user == "" {
		return Session{}, true
	}
	if token == "" || role == "" || user == "" {
		return Session{}, false
	}
	r, err := core.ParseRole(role)
	if err != nil {
		return Session{}, false
	}
	return Session{Token: token, Role: r, Username: user}, true
}

// Expired reports whether the token is a JWT whose exp claim is before now.
// Opaque tokens never expire locally; the API stays the authority.
func (s Session) Expired(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
