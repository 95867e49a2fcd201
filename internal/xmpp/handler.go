package xmpp

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	inats "github.com/haulbot/dispatcher/internal/nats"
)

// InboundPublisher queues inbound driver messages.
type InboundPublisher interface {
	PublishInboundMessage(ctx context.Context, msg inats.InboundMessage) error
}

// Handler processes incoming XMPP stanzas and bridges them to NATS.
type Handler struct {
	publisher InboundPublisher
}

// NewHandler creates a new XMPP stanza handler.
func NewHandler(publisher InboundPublisher) *Handler {
	return &Handler{publisher: publisher}
}

// HandleMessage processes incoming <message> stanzas and publishes them to NATS.
func (h *Handler) HandleMessage(s xmpp.Sender, p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}

	inbound, ok := toInbound(msg)
	if !ok {
		return
	}

	slog.Debug("XMPP message received",
		"from", msg.From,
		"to", msg.To,
		"type", string(msg.Type),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.publisher.PublishInboundMessage(ctx, inbound); err != nil {
		slog.Error("publishing inbound message", "error", err, "from", msg.From)
		sendError(s, msg.From, msg.To, "Sorry, we could not take your message. Please try again.")
	}
}

// HandlePresence processes incoming <presence> stanzas, auto-approving subscribe requests.
func (h *Handler) HandlePresence(s xmpp.Sender, p stanza.Packet) {
	pres, ok := p.(stanza.Presence)
	if !ok {
		return
	}

	slog.Debug("XMPP presence received",
		"from", pres.From,
		"to", pres.To,
		"type", string(pres.Type),
	)

	if reply, ok := subscribedReply(pres); ok {
		if err := s.Send(reply); err != nil {
			slog.Error("sending presence subscribed reply", "error", err)
		}
	}
}

// HandleIQ processes incoming <iq> stanzas.
func (h *Handler) HandleIQ(_ xmpp.Sender, p stanza.Packet) {
	iq, ok := p.(*stanza.IQ)
	if !ok {
		return
	}
	slog.Debug("XMPP IQ received", "from", iq.From, "to", iq.To, "type", string(iq.Type))
}

// toInbound maps a chat stanza to an inbound message keyed by the sender's
// bare JID, so every resource of one driver shares a session.
func toInbound(msg stanza.Message) (inats.InboundMessage, bool) {
	if strings.TrimSpace(msg.Body) == "" {
		return inats.InboundMessage{}, false
	}
	from := BareJID(msg.From)
	if from == "" {
		return inats.InboundMessage{}, false
	}

	id := msg.Id
	if id == "" {
		id = uuid.New().String()
	}
	return inats.InboundMessage{
		ID:         id,
		Channel:    inats.ChannelXMPP,
		From:       from,
		To:         BareJID(msg.To),
		Body:       msg.Body,
		ReceivedAt: time.Now().UTC(),
	}, true
}

func subscribedReply(pres stanza.Presence) (stanza.Presence, bool) {
	if pres.Type != "subscribe" {
		return stanza.Presence{}, false
	}
	return stanza.Presence{
		Attrs: stanza.Attrs{
			From: pres.To,
			To:   pres.From,
			Type: "subscribed",
		},
	}, true
}

func sendError(s packetSender, to, from, body string) {
	msg := stanza.Message{
		Attrs: stanza.Attrs{
			From: from,
			To:   to,
			Type: "chat",
		},
		Body: body,
	}
	if err := s.Send(msg); err != nil {
		slog.Error("sending error message", "error", err)
	}
}

// BareJID strips the resource from a JID: "driver@example.org/phone"
// becomes "driver@example.org".
func BareJID(jid string) string {
	jid = strings.TrimSpace(jid)
	if idx := strings.Index(jid, "/"); idx >= 0 {
		jid = jid[:idx]
	}
	return strings.ToLower(jid)
}
