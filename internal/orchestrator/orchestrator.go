package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/haulbot/dispatcher/internal/conversation"
	"github.com/haulbot/dispatcher/internal/metrics"
	inats "github.com/haulbot/dispatcher/internal/nats"
	"github.com/haulbot/dispatcher/internal/worker"
)

// Processor runs a conversation turn.
type Processor interface {
	Process(ctx context.Context, req conversation.Request) (*conversation.Reply, error)
}

// MediaFetcher downloads inbound media such as voice notes.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// OutboundPublisher queues replies for delivery.
type OutboundPublisher interface {
	PublishOutboundMessage(ctx context.Context, msg inats.OutboundMessage) error
}

// Orchestrator consumes inbound driver messages, runs each turn on the
// driver's worker lane and publishes the reply.
type Orchestrator struct {
	publisher   OutboundPublisher
	consumerMgr *inats.ConsumerManager
	engine      Processor
	lanes       *worker.Pool
	media       MediaFetcher
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	publisher OutboundPublisher,
	consumerMgr *inats.ConsumerManager,
	engine Processor,
	lanes *worker.Pool,
	media MediaFetcher,
) *Orchestrator {
	return &Orchestrator{
		publisher:   publisher,
		consumerMgr: consumerMgr,
		engine:      engine,
		lanes:       lanes,
		media:       media,
	}
}

// Start begins the orchestrator event loop. Blocks until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	consumer, err := o.consumerMgr.EnsureConsumer(ctx, inats.StreamMessages, "conversation", inats.SubjectInboundMessage, 2*time.Minute, 3)
	if err != nil {
		return err
	}

	slog.Info("orchestrator started", "consumer", "conversation", "lanes", o.lanes.Lanes())

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching inbound messages", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			o.enqueue(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (o *Orchestrator) enqueue(ctx context.Context, msg jetstream.Msg) {
	var inbound inats.InboundMessage
	if err := json.Unmarshal(msg.Data(), &inbound); err != nil {
		slog.Error("unmarshaling inbound message", "error", err)
		_ = msg.Term()
		return
	}

	err := o.lanes.Submit(ctx, inbound.From, func(jobCtx context.Context) {
		o.process(jobCtx, msg, inbound)
	})
	if err != nil {
		slog.Warn("queueing inbound message", "error", err, "id", inbound.ID)
		_ = msg.Nak()
	}
}

// settler is the part of jetstream.Msg a lane job needs.
type settler interface {
	InProgress() error
	Ack() error
	Nak() error
}

// process runs a queued turn. Jobs drained after shutdown began are handed
// back to the stream untouched.
func (o *Orchestrator) process(ctx context.Context, msg settler, inbound inats.InboundMessage) {
	if ctx.Err() != nil {
		slog.Info("returning inbound message to stream", "id", inbound.ID, "reason", ctx.Err())
		_ = msg.Nak()
		return
	}
	_ = msg.InProgress()
	o.handle(ctx, inbound)
	// The turn has been persisted; redelivery would duplicate it.
	_ = msg.Ack()
}

// handle runs one turn and publishes the reply. Failures are logged; the
// engine already converts provider failures into an apology.
func (o *Orchestrator) handle(ctx context.Context, inbound inats.InboundMessage) {
	slog.Debug("orchestrator processing message",
		"id", inbound.ID,
		"channel", inbound.Channel,
		"from", inbound.From,
		"audio", inbound.HasAudio(),
	)

	req := conversation.Request{User: inbound.From, Text: inbound.Body}
	if inbound.HasAudio() && o.media != nil {
		audio, err := o.media.Fetch(ctx, inbound.MediaURL)
		if err != nil {
			metrics.ProviderFailuresTotal.WithLabelValues("media").Inc()
			slog.Warn("downloading inbound media", "error", err, "id", inbound.ID)
		}
		req.Audio = audio
	}

	reply, err := o.engine.Process(ctx, req)
	if err != nil {
		slog.Error("processing turn", "error", err, "id", inbound.ID)
		return
	}

	outbound := inats.OutboundMessage{
		ID:        uuid.New().String(),
		Channel:   inbound.Channel,
		To:        inbound.From,
		InReplyTo: inbound.ID,
	}
	if reply.Kind == conversation.KindAudio {
		outbound.MediaURL = reply.Body
	} else {
		outbound.Body = reply.Body
	}

	if err := o.publisher.PublishOutboundMessage(ctx, outbound); err != nil {
		slog.Error("publishing outbound message", "error", err, "to", outbound.To)
	}
}
