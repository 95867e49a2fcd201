package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamMessages = "DISPATCHER_MESSAGES"
	StreamEvents   = "DISPATCHER_EVENTS"
)

// Subject constants.
const (
	SubjectInboundMessage  = "dispatcher.messages.inbound"
	SubjectOutboundMessage = "dispatcher.messages.outbound"
	SubjectAuditEvent      = "dispatcher.events.audit"
)

// Channel identifies the messaging network a driver talks through.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelXMPP     Channel = "xmpp"
)

// InboundMessage is published when a driver message arrives on any channel.
type InboundMessage struct {
	ID               string    `json:"id"`
	Channel          Channel   `json:"channel"`
	From             string    `json:"from"`
	To               string    `json:"to"`
	Body             string    `json:"body"`
	MediaURL         string    `json:"media_url,omitempty"`
	MediaContentType string    `json:"media_content_type,omitempty"`
	ReceivedAt       time.Time `json:"received_at"`
}

// HasAudio reports whether the message carries a voice note.
func (m InboundMessage) HasAudio() bool {
	return m.MediaURL != ""
}

// OutboundMessage is published to send a reply back on the driver's channel.
type OutboundMessage struct {
	ID        string  `json:"id"`
	Channel   Channel `json:"channel"`
	To        string  `json:"to"`
	Body      string  `json:"body,omitempty"`
	MediaURL  string  `json:"media_url,omitempty"`
	InReplyTo string  `json:"in_reply_to,omitempty"`
}

// AuditEvent is published for every turn, tool call and preference change.
type AuditEvent struct {
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"` // info, warn, error
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}
