package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"expensio/internal/api"
	"expensio/internal/core"
	"expensio/internal/log"
)

// Storage is the durable key/value space of one client.
type Storage interface {
	Read(ctx context.Context) (map[string]string, error)
	// Write stores all given keys in one atomic write.
	Write(ctx context.Context, values map[string]string) error
	Remove(ctx context.Context, keys ...string) error
}

// Toucher is implemented by storages that expire idle sessions. Touch
// restarts the idle timer without changing any value.
type Toucher interface {
	Touch(ctx context.Context) error
}

// Provider opens the Storage of a client id.
type Provider interface {
	Open(clientID string) Storage
}

// Authenticator is the part of the expense API the session needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (api.LoginResult, error)
	Register(ctx context.Context, username, password string, role core.Role) error
}

// EventPublisher receives an event after every successful mutation.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, ev core.SessionEvent) error
}

type Options struct {
	ClientID string
	Events   EventPublisher
	Logger   *log.Logger
	Now      func() time.Time
}

// Manager owns the session of one client. It is safe for concurrent use;
// readers never observe a half-replaced session.
type Manager struct {
	mu       sync.Mutex
	current  Session
	storage  Storage
	auth     Authenticator
	events   EventPublisher
	logger   *log.Logger
	clientID string
	now      func() time.Time
}

// Open loads the session persisted in storage. A snapshot that is partial,
// names an unknown role or holds an expired JWT loads as the empty session
// and its keys are removed.
func Open(ctx context.Context, storage Storage, auth Authenticator, opts Options) (*Manager, error) {
	m := &Manager{
		storage:  storage,
		auth:     auth,
		events:   opts.Events,
		logger:   opts.Logger,
		clientID: opts.ClientID,
		now:      opts.Now,
	}
	if m.logger == nil {
		m.logger = log.Discard()
	}
	m.logger = m.logger.WithComponent(log.ComponentSession)
	if m.now == nil {
		m.now = time.Now
	}

	values, err := storage.Read(ctx)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return nil, fmt.Errorf("read session: %w", err)
	}
	s, ok := FromSnapshot(values)
	reason := "invalid snapshot"
	if err != nil {
		s, ok, reason = Session{}, false, "corrupt snapshot"
	} else if ok && s.Expired(m.now()) {
		s, ok, reason = Session{}, false, "token expired"
	}
	if !ok {
		m.logger.InfoContext(ctx, "Discarding stored session",
			append(log.NewFields().WithSession(m.clientID, "", "").WithOperation(log.OpLoad).ToSlice(), "reason", reason)...)
		if err := storage.Remove(ctx, Keys...); err != nil {
			m.logger.WarnContext(ctx, "Failed to remove stale session keys", log.FieldError, err)
		}
	}
	m.current = s
	return m, nil
}

// Current returns a copy of the session.
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) ClientID() string { return m.clientID }

// Login authenticates against the API and, on success, persists and adopts
// the new session. On any failure the session is left untouched.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	if err := (core.CredentialsForm{Username: username, Password: password}).Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.login(ctx, strings.TrimSpace(username), password, core.SessionLogin)
}

// Register creates the account and then logs in with the same credentials.
// A taken username yields ErrAlreadyExists; the session is not touched.
func (m *Manager) Register(ctx context.Context, username, password string, role core.Role) error {
	if role == "" {
		role = core.RoleUser
	}
	form := core.CredentialsForm{Username: username, Password: password, Role: string(role)}
	if err := form.Validate(); err != nil {
		return err
	}
	username = strings.TrimSpace(username)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.auth.Register(ctx, username, password, role); err != nil {
		if errors.Is(err, api.ErrConflict) {
			return ErrAlreadyExists
		}
		return err
	}
	return m.login(ctx, username, password, core.SessionRegister)
}

// Logout clears the session and its persisted copy. It never calls the API.
// The in-memory session is empty even when removing the keys fails.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current
	m.current = Session{}
	if err := m.storage.Remove(ctx, Keys...); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	if prev.Authenticated() {
		m.publish(ctx, core.SessionLogout, prev)
	}
	return nil
}

// login must be called with m.mu held.
func (m *Manager) login(ctx context.Context, username, password string, kind core.SessionEventType) error {
	res, err := m.auth.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, api.ErrForbidden) {
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return err
	}
	role, err := core.ParseRole(string(res.Role))
	if res.Token == "" || err != nil {
		return ErrInvalidResponse
	}

	next := Session{Token: res.Token, Role: role, Username: username}
	if err := m.storage.Write(ctx, next.Snapshot()); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	m.current = next
	m.publish(ctx, kind, next)
	return nil
}

func (m *Manager) publish(ctx context.Context, kind core.SessionEventType, s Session) {
	fields := log.NewFields().WithSession(m.clientID, s.Username, string(s.Role)).WithOperation(string(kind))
	m.logger.InfoContext(ctx, "Session changed", fields.ToSlice()...)
	if m.events == nil {
		return
	}
	ev := core.SessionEvent{
		ID:        uuid.NewString(),
		Type:      kind,
		Username:  s.Username,
		Role:      s.Role,
		ClientID:  m.clientID,
		Timestamp: m.now().UTC(),
	}
	if err := m.events.PublishSessionEvent(ctx, ev); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish session event",
			fields.WithError(err, log.ErrorTypeNetwork).ToSlice()...)
	}
}
