// Package whatsapp connects drivers on WhatsApp through Twilio: the inbound
// webhook, outbound delivery and media download.
package whatsapp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/haulbot/dispatcher/internal/api"
	inats "github.com/haulbot/dispatcher/internal/nats"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// InboundPublisher queues inbound driver messages.
type InboundPublisher interface {
	PublishInboundMessage(ctx context.Context, msg inats.InboundMessage) error
}

// WebhookForm is the subset of Twilio's inbound message form the
// dispatcher reads.
type WebhookForm struct {
	MessageSid       string `validate:"required"`
	From             string `validate:"required"`
	To               string
	Body             string `validate:"max=4096"`
	MessageType      string
	NumMedia         int    `validate:"min=0,max=10"`
	MediaURL         string `validate:"omitempty,url"`
	MediaContentType string
}

// WebhookHandler accepts Twilio's inbound message callbacks.
type WebhookHandler struct {
	publisher     InboundPublisher
	validate      *validator.Validate
	authToken     string
	verify        bool
	publicBaseURL string
}

// NewWebhookHandler creates a WebhookHandler. When verify is set, requests
// must carry a valid X-Twilio-Signature computed over publicBaseURL plus the
// request path.
func NewWebhookHandler(publisher InboundPublisher, authToken string, verify bool, publicBaseURL string) *WebhookHandler {
	return &WebhookHandler{
		publisher:     publisher,
		validate:      validator.New(),
		authToken:     authToken,
		verify:        verify,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Receive handles POST /webhooks/whatsapp. The reply is sent later through
// the REST API, so the webhook answers with empty TwiML.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if h.verify {
		fullURL := h.publicBaseURL + r.URL.RequestURI()
		if !ValidSignature(h.authToken, fullURL, r.PostForm, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("rejecting webhook with bad signature", "remote", r.RemoteAddr)
			api.HandleError(w, api.ErrForbidden)
			return
		}
	}

	form := parseForm(r)
	if err := h.validate.Struct(form); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	inbound := inats.InboundMessage{
		ID:         form.MessageSid,
		Channel:    inats.ChannelWhatsApp,
		From:       form.From,
		To:         form.To,
		Body:       form.Body,
		ReceivedAt: time.Now().UTC(),
	}
	if form.NumMedia > 0 && (form.MessageType == "audio" || strings.HasPrefix(form.MediaContentType, "audio/")) {
		inbound.MediaURL = form.MediaURL
		inbound.MediaContentType = form.MediaContentType
	}

	if err := h.publisher.PublishInboundMessage(r.Context(), inbound); err != nil {
		slog.Error("publishing inbound message", "error", err, "from", form.From)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

func parseForm(r *http.Request) WebhookForm {
	numMedia, _ := strconv.Atoi(r.PostForm.Get("NumMedia"))
	return WebhookForm{
		MessageSid:       r.PostForm.Get("MessageSid"),
		From:             r.PostForm.Get("From"),
		To:               r.PostForm.Get("To"),
		Body:             r.PostForm.Get("Body"),
		MessageType:      r.PostForm.Get("MessageType"),
		NumMedia:         numMedia,
		MediaURL:         r.PostForm.Get("MediaUrl0"),
		MediaContentType: r.PostForm.Get("MediaContentType0"),
	}
}

// SenderKey extracts the WhatsApp sender for rate limiting, falling back to
// the remote address.
func SenderKey(r *http.Request) string {
	if from := r.PostFormValue("From"); from != "" {
		return from
	}
	return r.RemoteAddr
}
