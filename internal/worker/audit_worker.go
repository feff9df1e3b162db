package worker

import (
	"context"
	"fmt"

	"expensio/internal/amqp"
	"expensio/internal/core"
	"expensio/internal/log"
)

// EventRecorder appends session events to the audit log.
type EventRecorder interface {
	RecordEvent(ctx context.Context, ev core.SessionEvent) (bool, error)
}

// AuditWorker records session events delivered over AMQP. Idle sessions are
// purged by the web server, which owns the session store.
type AuditWorker struct {
	recorder EventRecorder
	logger   *log.Logger
}

func NewAuditWorker(recorder EventRecorder, logger *log.Logger) *AuditWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &AuditWorker{
		recorder: recorder,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleSessionEvent records one delivered event. Redeliveries are accepted
// and ignored, so a returned error always means the event must be retried.
func (w *AuditWorker) HandleSessionEvent(ctx context.Context, msg *amqp.SessionEventMessage) error {
	ev := msg.Event()
	inserted, err := w.recorder.RecordEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}

	fields := log.NewFields().WithSession(ev.ClientID, ev.Username, string(ev.Role)).WithOperation(log.OpConsume)
	fields[log.FieldEventID] = ev.ID
	fields[log.FieldEvent] = string(ev.Type)
	if !inserted {
		w.logger.DebugContext(ctx, "Duplicate session event ignored", fields.ToSlice()...)
		return nil
	}
	w.logger.InfoContext(ctx, "Session event recorded", fields.ToSlice()...)
	return nil
}
