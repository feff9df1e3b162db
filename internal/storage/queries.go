package storage

import (
	"context"
	"time"
)

type SessionField struct {
	Key   string
	Value string
}

const getSessionFields = `SELECT key, value FROM session_fields WHERE client_id = ?`

func (q *Queries) GetSessionFields(ctx context.Context, clientID string) ([]SessionField, error) {
	rows, err := q.db.QueryContext(ctx, getSessionFields, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionField
	for rows.Next() {
		var i SessionField
		if err := rows.Scan(&i.Key, &i.Value); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertSessionField = `INSERT INTO session_fields (client_id, key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (client_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

type UpsertSessionFieldParams struct {
	ClientID  string
	Key       string
	Value     string
	UpdatedAt time.Time
}

func (q *Queries) UpsertSessionField(ctx context.Context, arg UpsertSessionFieldParams) error {
	_, err := q.db.ExecContext(ctx, upsertSessionField, arg.ClientID, arg.Key, arg.Value, arg.UpdatedAt)
	return err
}

const deleteSessionField = `DELETE FROM session_fields WHERE client_id = ? AND key = ?`

func (q *Queries) DeleteSessionField(ctx context.Context, clientID, key string) error {
	_, err := q.db.ExecContext(ctx, deleteSessionField, clientID, key)
	return err
}

const touchSessionFields = `UPDATE session_fields SET updated_at = ? WHERE client_id = ? AND updated_at < ?`

type TouchSessionFieldsParams struct {
	ClientID  string
	UpdatedAt time.Time
	Before    time.Time
}

func (q *Queries) TouchSessionFields(ctx context.Context, arg TouchSessionFieldsParams) error {
	_, err := q.db.ExecContext(ctx, touchSessionFields, arg.UpdatedAt, arg.ClientID, arg.Before)
	return err
}

const deleteExpiredSessionFields = `DELETE FROM session_fields WHERE updated_at < ?`

func (q *Queries) DeleteExpiredSessionFields(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredSessionFields, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertSessionEvent = `INSERT OR IGNORE INTO session_events (id, type, username, role, client_id, occurred_at)
VALUES (?, ?, ?, ?, ?, ?)`

type InsertSessionEventParams struct {
	ID         string
	Type       string
	Username   string
	Role       string
	ClientID   string
	OccurredAt time.Time
}

// InsertSessionEvent reports whether a row was written; redelivered events
// are ignored.
func (q *Queries) InsertSessionEvent(ctx context.Context, arg InsertSessionEventParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertSessionEvent,
		arg.ID, arg.Type, arg.Username, arg.Role, arg.ClientID, arg.OccurredAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const listSessionEvents = `SELECT id, type, username, role, client_id, occurred_at
FROM session_events
ORDER BY occurred_at DESC, id
LIMIT ?`

type SessionEventRow struct {
	ID         string
	Type       string
	Username   string
	Role       string
	ClientID   string
	OccurredAt time.Time
}

func (q *Queries) ListSessionEvents(ctx context.Context, limit int64) ([]SessionEventRow, error) {
	rows, err := q.db.QueryContext(ctx, listSessionEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionEventRow
	for rows.Next() {
		var i SessionEventRow
		if err := rows.Scan(&i.ID, &i.Type, &i.Username, &i.Role, &i.ClientID, &i.OccurredAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
