package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"expensio/internal/core"
	"expensio/internal/session"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists sessions and the session audit log.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Open returns the session storage of clientID.
func (r *SQLiteRepository) Open(clientID string) session.Storage {
	return &sqliteSession{repo: r, clientID: clientID}
}

// PurgeExpired removes session fields not written for longer than ttl.
func (r *SQLiteRepository) PurgeExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := r.queries.DeleteExpiredSessionFields(ctx, stamp(r.now().Add(-ttl)))
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return n, nil
}

// RecordEvent appends ev to the audit log. A redelivered event is a no-op
// and reports false.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, ev core.SessionEvent) (bool, error) {
	inserted, err := r.queries.InsertSessionEvent(ctx, InsertSessionEventParams{
		ID:         ev.ID,
		Type:       string(ev.Type),
		Username:   ev.Username,
		Role:       string(ev.Role),
		ClientID:   ev.ClientID,
		OccurredAt: stamp(ev.Timestamp),
	})
	if err != nil {
		return false, fmt.Errorf("record session event: %w", err)
	}
	return inserted, nil
}

// ListEvents returns the newest audit entries first.
func (r *SQLiteRepository) ListEvents(ctx context.Context, limit int) ([]core.SessionEvent, error) {
	rows, err := r.queries.ListSessionEvents(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	out := make([]core.SessionEvent, len(rows))
	for i, row := range rows {
		out[i] = core.SessionEvent{
			ID:        row.ID,
			Type:      core.SessionEventType(row.Type),
			Username:  row.Username,
			Role:      core.Role(row.Role),
			ClientID:  row.ClientID,
			Timestamp: row.OccurredAt.UTC(),
		}
	}
	return out, nil
}

type sqliteSession struct {
	repo     *SQLiteRepository
	clientID string
}

func (s *sqliteSession) Read(ctx context.Context) (map[string]string, error) {
	fields, err := s.repo.queries.GetSessionFields(ctx, s.clientID)
	if err != nil {
		return nil, fmt.Errorf("read session fields: %w", err)
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out, nil
}

func (s *sqliteSession) Write(ctx context.Context, values map[string]string) error {
	return s.repo.inTx(ctx, func(q *Queries) error {
		now := stamp(s.repo.now())
		for k, v := range values {
			if err := q.UpsertSessionField(ctx, UpsertSessionFieldParams{
				ClientID: s.clientID, Key: k, Value: v, UpdatedAt: now,
			}); err != nil {
				return fmt.Errorf("write session field %s: %w", k, err)
			}
		}
		return nil
	})
}

// touchInterval bounds how often reads of an active session rewrite its
// timestamp.
const touchInterval = time.Minute

// Touch moves updated_at to now, at most once per touchInterval.
func (s *sqliteSession) Touch(ctx context.Context) error {
	now := stamp(s.repo.now())
	err := s.repo.queries.TouchSessionFields(ctx, TouchSessionFieldsParams{
		ClientID:  s.clientID,
		UpdatedAt: now,
		Before:    now.Add(-touchInterval),
	})
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *sqliteSession) Remove(ctx context.Context, keys ...string) error {
	return s.repo.inTx(ctx, func(q *Queries) error {
		for _, k := range keys {
			if err := q.DeleteSessionField(ctx, s.clientID, k); err != nil {
				return fmt.Errorf("remove session field %s: %w", k, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// stamp normalises times so that stored values compare in order.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
