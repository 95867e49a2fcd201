// Package tools executes the functions the dispatcher model can call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haulbot/dispatcher/internal/audit"
	"github.com/haulbot/dispatcher/internal/location"
	"github.com/haulbot/dispatcher/internal/metrics"
	"github.com/haulbot/dispatcher/internal/preference"
	"github.com/haulbot/dispatcher/internal/session"
)

var (
	ErrMissingArgument = errors.New("missing required argument")
	ErrUnknownTool     = errors.New("unknown tool")
)

// FallbackText is returned when the model names a tool that does not exist.
const FallbackText = "Sorry, I can not help with that right now. Please choose one of the options below."

// Invocation is a tool call selected by the model.
type Invocation struct {
	Name      Name
	Arguments map[string]string
}

// Result is the text a handler produced. NoOp marks a call that changed
// nothing and whose text should not enter the history.
type Result struct {
	Text string
	NoOp bool
}

// Preferences stores driver languages.
type Preferences interface {
	Set(ctx context.Context, userID, code string) (preference.Language, bool, error)
}

// History records developer notes for the model.
type History interface {
	Append(ctx context.Context, userID string, role session.Role, content string) error
}

// Places finds points of interest around an anchor.
type Places interface {
	FindNearby(ctx context.Context, category location.Category, anchor string) []location.Place
}

// Auditor records audit events.
type Auditor interface {
	Record(ctx context.Context, userID, eventType, severity, details string)
}

// Corridor is the reference route used to recommend a fuel stop.
type Corridor struct {
	Origin      string
	Destination string
}

type handlerFunc func(ctx context.Context, userID string, args map[string]string) (Result, error)

// Dispatcher maps tool names to handlers.
type Dispatcher struct {
	prefs    Preferences
	history  History
	places   Places
	auditor  Auditor
	corridor Corridor
	handlers map[Name]handlerFunc
	logger   *slog.Logger
}

func NewDispatcher(prefs Preferences, history History, places Places, auditor Auditor, corridor Corridor) *Dispatcher {
	if auditor == nil {
		auditor = audit.NewRecorder(nil)
	}
	d := &Dispatcher{
		prefs:    prefs,
		history:  history,
		places:   places,
		auditor:  auditor,
		corridor: corridor,
		logger:   slog.Default().With("component", "tools"),
	}
	d.handlers = map[Name]handlerFunc{
		UpdateUserPreference: d.updateUserPreference,
		GetRoute:             d.getRoute,
		GetGasStations:       d.getGasStations,
		GetRepairStations:    d.getRepairStations,
	}
	return d
}

// Dispatch runs the handler for inv. An unknown tool is a configuration
// problem: it is logged and answered with FallbackText and a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, inv Invocation) (Result, error) {
	handler, ok := d.handlers[inv.Name]
	if !ok {
		d.logger.Error("tool not defined, returning generic message",
			"error", ErrUnknownTool, "tool", inv.Name, "user", userID)
		metrics.ToolCallsTotal.WithLabelValues(string(inv.Name), "unknown").Inc()
		return Result{Text: FallbackText}, nil
	}

	for _, name := range inv.Name.Required() {
		if strings.TrimSpace(inv.Arguments[name]) == "" {
			metrics.ToolCallsTotal.WithLabelValues(string(inv.Name), "invalid").Inc()
			return Result{}, fmt.Errorf("%s: %w: %s", inv.Name, ErrMissingArgument, name)
		}
	}

	res, err := handler(ctx, userID, inv.Arguments)
	switch {
	case err != nil:
		metrics.ToolCallsTotal.WithLabelValues(string(inv.Name), "error").Inc()
		return Result{}, err
	case res.NoOp:
		metrics.ToolCallsTotal.WithLabelValues(string(inv.Name), "noop").Inc()
	default:
		metrics.ToolCallsTotal.WithLabelValues(string(inv.Name), "ok").Inc()
	}

	d.auditor.Record(ctx, userID, audit.EventToolInvoked, audit.SeverityInfo, formatArgs(inv))
	return res, nil
}

func formatArgs(inv Invocation) string {
	var b strings.Builder
	b.WriteString(string(inv.Name))
	for _, name := range inv.Name.Required() {
		fmt.Fprintf(&b, " %s=%q", name, inv.Arguments[name])
	}
	return b.String()
}
