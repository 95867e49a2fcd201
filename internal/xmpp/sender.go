package xmpp

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gosrc.io/xmpp/stanza"

	inats "github.com/haulbot/dispatcher/internal/nats"
)

// packetSender is the part of xmpp.Sender used for delivery.
type packetSender interface {
	Send(packet stanza.Packet) error
}

// Sender delivers outbound replies as chat stanzas from the component domain.
type Sender struct {
	conn   packetSender
	domain string
}

// NewSender creates a Sender that writes through conn.
func NewSender(conn packetSender, domain string) *Sender {
	return &Sender{conn: conn, domain: domain}
}

// Send writes msg as a chat stanza. Audio replies carry their link in the
// body, since plain XMPP clients have no media attachment.
func (s *Sender) Send(ctx context.Context, msg inats.OutboundMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if msg.To == "" {
		return "", errors.New("xmpp: outbound message has no recipient")
	}

	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}
	body := msg.Body
	if body == "" {
		body = msg.MediaURL
	}

	err := s.conn.Send(stanza.Message{
		Attrs: stanza.Attrs{
			From: s.domain,
			To:   msg.To,
			Type: "chat",
			Id:   id,
		},
		Body: body,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
