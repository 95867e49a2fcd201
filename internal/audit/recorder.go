package audit

import (
	"context"
	"log/slog"
	"time"

	inats "github.com/haulbot/dispatcher/internal/nats"
)

// EventPublisher is the subset of the NATS publisher the recorder needs.
type EventPublisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// Recorder emits audit events. Publishing failures are logged and never
// surface to the caller.
type Recorder struct {
	pub EventPublisher
}

// NewRecorder returns a Recorder; a nil publisher yields a recorder that only
// logs.
func NewRecorder(pub EventPublisher) *Recorder {
	return &Recorder{pub: pub}
}

// Record publishes one event for userID.
func (r *Recorder) Record(ctx context.Context, userID, eventType, severity, details string) {
	event := inats.AuditEvent{
		UserID:    userID,
		EventType: eventType,
		Severity:  severity,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	if r == nil || r.pub == nil {
		slog.Debug("audit event", "user", userID, "event_type", eventType, "details", details)
		return
	}
	if err := r.pub.PublishAuditEvent(ctx, event); err != nil {
		slog.Warn("publishing audit event", "error", err, "event_type", eventType, "user", userID)
	}
}
