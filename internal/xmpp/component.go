// Package xmpp is the second driver channel: an external component
// (XEP-0114) whose chat messages are processed like WhatsApp messages.
package xmpp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"gosrc.io/xmpp"

	"github.com/haulbot/dispatcher/internal/config"
)

// Component manages the XMPP external component lifecycle.
type Component struct {
	sm        *xmpp.StreamManager
	comp      *xmpp.Component
	domain    string
	connected atomic.Bool
}

// NewComponent creates a new XMPP component with the given handler.
func NewComponent(cfg config.XMPPConfig, handler *Handler) (*Component, error) {
	c := &Component{domain: cfg.ComponentName}

	router := xmpp.NewRouter()
	router.HandleFunc("message", handler.HandleMessage)
	router.HandleFunc("presence", handler.HandlePresence)
	router.HandleFunc("iq", handler.HandleIQ)

	opts := xmpp.ComponentOptions{
		TransportConfiguration: xmpp.TransportConfiguration{
			Address: cfg.ComponentAddr(),
			Domain:  cfg.ComponentName,
		},
		Domain:   cfg.ComponentName,
		Secret:   cfg.ComponentSecret,
		Name:     "Dispatcher Gateway",
		Category: "gateway",
		Type:     "service",
	}

	comp, err := xmpp.NewComponent(opts, router, func(err error) {
		c.connected.Store(false)
		slog.Error("xmpp component error", "error", err, "domain", cfg.ComponentName)
	})
	if err != nil {
		return nil, fmt.Errorf("creating xmpp component: %w", err)
	}
	c.comp = comp

	c.sm = xmpp.NewStreamManager(comp, func(xmpp.Sender) {
		c.connected.Store(true)
		slog.Info("xmpp component connected", "domain", cfg.ComponentName)
	})

	return c, nil
}

// Start runs the component, reconnecting as needed. It blocks until ctx is
// cancelled or the stream manager gives up.
func (c *Component) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.sm.Run()
	}()

	select {
	case <-ctx.Done():
		c.Stop()
		return nil
	case err := <-errCh:
		c.connected.Store(false)
		return err
	}
}

// Stop disconnects the component.
func (c *Component) Stop() {
	c.connected.Store(false)
	c.sm.Stop()
}

// Healthy is a readiness probe for the component connection.
func (c *Component) Healthy(context.Context) error {
	if !c.connected.Load() {
		return errors.New("xmpp component not connected")
	}
	return nil
}

// OutboundSender returns the delivery sender for replies to XMPP drivers.
func (c *Component) OutboundSender() *Sender {
	return NewSender(c.comp, c.domain)
}
