package backend

import (
	"context"
	"time"

	"expensio/internal/session"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// PingFunc reports whether the backing store is reachable.
type PingFunc func(ctx context.Context) error

// BackendResult bundles the session storage with its optional event
// publisher and the hooks the server needs around them.
type BackendResult struct {
	Provider session.Provider
	Events   session.EventPublisher // nil when AMQP is not configured
	Ping     PingFunc
	Purge    func(ctx context.Context, ttl time.Duration) (int64, error) // nil when the store expires keys itself
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SessionTTL time.Duration

	// SQLite specific
	SQLiteDBPath string

	// Redis specific
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Session events, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RedisBackend  BackendType = "redis"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RedisBackend:
		return true
	default:
		return false
	}
}
