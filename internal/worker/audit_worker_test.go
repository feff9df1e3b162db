package worker

import (
	"context"
	"errors"
	"testing"

	"expensio/internal/amqp"
	"expensio/internal/core"
)

type fakeRecorder struct {
	seen map[string]bool
	err  error
}

func (f *fakeRecorder) RecordEvent(ctx context.Context, ev core.SessionEvent) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[ev.ID] {
		return false, nil
	}
	f.seen[ev.ID] = true
	return true, nil
}

func TestHandleSessionEvent(t *testing.T) {
	rec := &fakeRecorder{seen: map[string]bool{}}
	w := NewAuditWorker(rec, nil)
	msg := &amqp.SessionEventMessage{ID: "e1", Type: "login", Username: "ann", Role: "USER", ClientID: "c"}

	if err := w.HandleSessionEvent(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !rec.seen["e1"] {
		t.Fatalf("event not recorded")
	}
	if err := w.HandleSessionEvent(context.Background(), msg); err != nil {
		t.Fatalf("redelivery should be accepted, got %v", err)
	}
}

func TestHandleSessionEventStorageFailureRequeues(t *testing.T) {
	w := NewAuditWorker(&fakeRecorder{err: errors.New("database is locked")}, nil)
	err := w.HandleSessionEvent(context.Background(), &amqp.SessionEventMessage{ID: "e1", Type: "logout"})
	if err == nil {
		t.Fatalf("expected error so the message is requeued")
	}
}
