package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/haulbot/dispatcher/internal/metrics"
	inats "github.com/haulbot/dispatcher/internal/nats"
)

// ErrNoSender is returned for a message on a channel without a sender.
var ErrNoSender = errors.New("no sender for channel")

// Sender delivers a message on one channel and returns the channel's
// delivery id.
type Sender interface {
	Send(ctx context.Context, msg inats.OutboundMessage) (string, error)
}

// Relay consumes outbound messages from NATS and hands them to the sender
// of their channel.
type Relay struct {
	senders     map[inats.Channel]Sender
	consumerMgr *inats.ConsumerManager
}

// NewRelay creates a new Relay.
func NewRelay(consumerMgr *inats.ConsumerManager) *Relay {
	return &Relay{
		senders:     make(map[inats.Channel]Sender),
		consumerMgr: consumerMgr,
	}
}

// Register installs the sender for a channel. It must be called before Start.
func (r *Relay) Register(ch inats.Channel, s Sender) {
	r.senders[ch] = s
}

// Deliver sends msg through its channel's sender.
func (r *Relay) Deliver(ctx context.Context, msg inats.OutboundMessage) (string, error) {
	sender, ok := r.senders[msg.Channel]
	if !ok {
		metrics.MessagesDeliveredTotal.WithLabelValues(string(msg.Channel), "no_sender").Inc()
		return "", fmt.Errorf("%w %q", ErrNoSender, msg.Channel)
	}

	id, err := sender.Send(ctx, msg)
	if err != nil {
		metrics.MessagesDeliveredTotal.WithLabelValues(string(msg.Channel), "error").Inc()
		return "", err
	}
	metrics.MessagesDeliveredTotal.WithLabelValues(string(msg.Channel), "sent").Inc()
	return id, nil
}

// Start begins consuming outbound messages. Blocks until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	consumer, err := r.consumerMgr.EnsureConsumer(ctx, inats.StreamMessages, "outbound-relay", inats.SubjectOutboundMessage, 30*time.Second, 5)
	if err != nil {
		return err
	}

	slog.Info("outbound relay started", "consumer", "outbound-relay")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching outbound messages", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			r.relay(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *Relay) relay(ctx context.Context, msg jetstream.Msg) {
	var outbound inats.OutboundMessage
	if err := json.Unmarshal(msg.Data(), &outbound); err != nil {
		slog.Error("unmarshaling outbound message", "error", err)
		_ = msg.Term()
		return
	}

	id, err := r.Deliver(ctx, outbound)
	switch {
	case errors.Is(err, ErrNoSender):
		slog.Error("dropping outbound message", "error", err, "to", outbound.To)
		_ = msg.Term()
	case err != nil:
		slog.Error("sending outbound message", "error", err, "channel", outbound.Channel, "to", outbound.To)
		_ = msg.Nak()
	default:
		slog.Debug("sent outbound message", "channel", outbound.Channel, "to", outbound.To, "delivery_id", id)
		_ = msg.Ack()
	}
}
