package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/haulbot/dispatcher/internal/config"
)

// Streams is the JetStream topology the dispatcher relies on. Driver
// messages are work items consumed once; audit events are retained for
// replay by the persister.
var Streams = []jetstream.StreamConfig{
	{
		Name:        StreamMessages,
		Description: "driver messages in both directions",
		Subjects:    []string{SubjectInboundMessage, SubjectOutboundMessage},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Duplicates:  10 * time.Minute,
	},
	{
		Name:        StreamEvents,
		Description: "audit trail of conversation turns and tool calls",
		Subjects:    []string{SubjectAuditEvent},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
	},
}

// Client holds the NATS connection and its JetStream handle.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects to cfg.URL, retrying in the background, and declares
// Streams.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	conn, err := nats.Connect(cfg.URL, connectOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening jetstream: %w", err)
	}

	for _, sc := range Streams {
		if _, err := js.CreateOrUpdateStream(ctx, sc); err != nil {
			conn.Close()
			return nil, fmt.Errorf("declaring stream %s: %w", sc.Name, err)
		}
		slog.Debug("nats stream ready", "stream", sc.Name, "subjects", sc.Subjects)
	}

	slog.Info("connected to nats", "url", cfg.URL, "streams", len(Streams))
	return &Client{conn: conn, js: js}, nil
}

func connectOptions() []nats.Option {
	return []nats.Option{
		nats.Name("dispatcher"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats connection lost", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats connection restored", "url", nc.ConnectedUrl())
		}),
	}
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Healthy reports whether the connection is currently up.
func (c *Client) Healthy() bool {
	return c.conn.IsConnected()
}

// Close drains in-flight messages before closing.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining nats connection", "error", err)
	}
}
