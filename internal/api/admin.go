package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/haulbot/dispatcher/internal/audit"
	inats "github.com/haulbot/dispatcher/internal/nats"
	"github.com/haulbot/dispatcher/internal/session"
)

// ChatHistory lists a user's session turns.
type ChatHistory interface {
	List(ctx context.Context, userID string) ([]session.Message, error)
}

// Deliverer sends a message on its channel and returns the delivery id.
type Deliverer interface {
	Deliver(ctx context.Context, msg inats.OutboundMessage) (string, error)
}

// AuditLister pages through a user's audit trail.
type AuditLister interface {
	ListByUser(ctx context.Context, userID string, params audit.ListParams) ([]audit.Log, int64, error)
}

// AdminHandler serves the operator endpoints under /api/v1.
type AdminHandler struct {
	history  ChatHistory
	delivery Deliverer
	audit    AuditLister
	validate *validator.Validate
}

// NewAdminHandler creates an AdminHandler. auditLogs may be nil when the
// storage driver keeps no audit table.
func NewAdminHandler(history ChatHistory, delivery Deliverer, auditLogs AuditLister) *AdminHandler {
	return &AdminHandler{
		history:  history,
		delivery: delivery,
		audit:    auditLogs,
		validate: validator.New(),
	}
}

type SendMessageRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required,max=4096"`
	Channel string `json:"channel" validate:"omitempty,oneof=whatsapp xmpp"`
}

type SendMessageResponse struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	To      string `json:"to"`
}

// ListChat handles GET /api/v1/chats/{user}.
func (h *AdminHandler) ListChat(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(r)
	if !ok {
		HandleError(w, NewBadRequestError("invalid user"))
		return
	}

	msgs, err := h.history.List(r.Context(), user)
	if err != nil {
		slog.Error("listing chat history", "error", err, "user", user)
		HandleError(w, ErrInternalServer)
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	JSON(w, http.StatusOK, msgs)
}

// SendMessage handles POST /api/v1/messages.
func (h *AdminHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		HandleError(w, ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		HandleError(w, NewValidationError(err.Error()))
		return
	}

	channel := inats.Channel(req.Channel)
	if channel == "" {
		channel = ChannelFor(req.To)
	}

	id, err := h.delivery.Deliver(r.Context(), inats.OutboundMessage{
		ID:      uuid.New().String(),
		Channel: channel,
		To:      req.To,
		Body:    req.Message,
	})
	if err != nil {
		slog.Error("sending operator message", "error", err, "to", req.To, "channel", channel)
		HandleError(w, ErrBadGateway)
		return
	}

	JSON(w, http.StatusOK, SendMessageResponse{ID: id, Channel: string(channel), To: req.To})
}

// ListAudit handles GET /api/v1/audit/{user}.
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		HandleError(w, NewNotFoundError("audit trail not available with this storage driver"))
		return
	}
	user, ok := userParam(r)
	if !ok {
		HandleError(w, NewBadRequestError("invalid user"))
		return
	}

	params := audit.DefaultListParams()
	params.EventType = r.URL.Query().Get("event_type")
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		params.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 && v <= 100 {
		params.PageSize = v
	}

	logs, total, err := h.audit.ListByUser(r.Context(), user, params)
	if err != nil {
		slog.Error("listing audit logs", "error", err, "user", user)
		HandleError(w, ErrInternalServer)
		return
	}
	if logs == nil {
		logs = []audit.Log{}
	}
	JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}

// ChannelFor guesses the channel of an address: WhatsApp numbers carry the
// "whatsapp:" prefix, anything with an @ is a JID.
func ChannelFor(to string) inats.Channel {
	if strings.Contains(to, "@") && !strings.HasPrefix(to, "whatsapp:") {
		return inats.ChannelXMPP
	}
	return inats.ChannelWhatsApp
}

func userParam(r *http.Request) (string, bool) {
	user, err := url.PathUnescape(chi.URLParam(r, "user"))
	if err != nil || strings.TrimSpace(user) == "" {
		return "", false
	}
	return user, true
}
