package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/haulbot/dispatcher/internal/nats"
)

// Inserter persists audit logs.
type Inserter interface {
	Insert(ctx context.Context, log *Log) error
}

// Consumer listens on the audit event NATS subject and persists entries to the database.
type Consumer struct {
	repo        Inserter
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new audit event Consumer.
func NewConsumer(repo Inserter, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "audit-persister", inats.SubjectAuditEvent, 30*time.Second, 5)
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", "audit-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	log, err := decodeEvent(msg.Data())
	if err != nil {
		slog.Error("audit consumer: unmarshaling event", "error", err)
		// Malformed payloads never become valid; drop them.
		_ = msg.Term()
		return
	}

	if err := c.repo.Insert(ctx, log); err != nil {
		slog.Error("audit consumer: persisting audit log", "error", err, "event_type", log.EventType)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	slog.Debug("audit consumer: persisted event", "event_type", log.EventType, "user", log.UserID)
}

// decodeEvent converts a NATS audit event payload into a Log row.
func decodeEvent(data []byte) (*Log, error) {
	var event inats.AuditEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}

	log := &Log{
		ID:        uuid.New(),
		UserID:    event.UserID,
		EventType: event.EventType,
		Severity:  event.Severity,
		CreatedAt: event.Timestamp,
	}
	if log.Severity == "" {
		log.Severity = SeverityInfo
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	// Details are stored as JSONB {"message": "..."}.
	if details, err := json.Marshal(map[string]string{"message": event.Details}); err == nil {
		log.Details = details
	}
	return log, nil
}
