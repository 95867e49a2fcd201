// Package conversation runs one driver turn from inbound text or audio to the
// final reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haulbot/dispatcher/internal/audit"
	"github.com/haulbot/dispatcher/internal/llm"
	"github.com/haulbot/dispatcher/internal/metrics"
	"github.com/haulbot/dispatcher/internal/preference"
	"github.com/haulbot/dispatcher/internal/session"
	"github.com/haulbot/dispatcher/internal/tools"
)

// User-facing fallback texts, in the base language.
const (
	ApologyText             = "Sorry, something went wrong on our side. Please try again in a moment."
	UnsupportedLanguageText = "Sorry, that language is not supported."
	NotUnderstoodText       = "Sorry, I could not understand your message. Please choose one of the options below."
	MissingDetailsText      = "Sorry, I need a little more detail to do that. Please include where you are starting from and where you are heading."
)

// ErrNoUser is returned for a request without a sender identity.
var ErrNoUser = errors.New("conversation: request has no user")

// ReplyKind tells the channel how to deliver a reply.
type ReplyKind string

const (
	KindText  ReplyKind = "text"
	KindAudio ReplyKind = "audio"
)

// Request is one inbound driver message. Audio, when present, takes
// precedence over Text.
type Request struct {
	User  string
	Text  string
	Audio []byte
}

// Reply is the outcome of a turn. For KindAudio, Body is the URL of the
// synthesized file.
type Reply struct {
	Body string
	Kind ReplyKind
}

// Preferences reads driver languages.
type Preferences interface {
	Language(ctx context.Context, userID string) (preference.Language, error)
}

// History is the session transcript.
type History interface {
	Append(ctx context.Context, userID string, role session.Role, content string) error
	List(ctx context.Context, userID string) ([]session.Message, error)
}

// Speech transcribes and synthesizes audio.
type Speech interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Synthesize(ctx context.Context, text string) (string, error)
}

// Tools runs a model-selected tool.
type Tools interface {
	Dispatch(ctx context.Context, userID string, inv tools.Invocation) (tools.Result, error)
}

// Auditor records audit events.
type Auditor interface {
	Record(ctx context.Context, userID, eventType, severity, details string)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Preferences Preferences
	History     History
	Translator  Translator
	Speech      Speech
	Model       llm.Provider
	Tools       Tools
	Auditor     Auditor
}

// Config tunes the model call.
type Config struct {
	Prompt    string
	MaxTokens int
	Timeout   time.Duration
}

// Engine drives conversation turns. It is safe for concurrent use; callers
// serialize turns of the same user.
type Engine struct {
	cfg        Config
	prefs      Preferences
	history    History
	translator Translator
	speech     Speech
	model      llm.Provider
	tools      Tools
	auditor    Auditor
	logger     *slog.Logger
}

func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	auditor := deps.Auditor
	if auditor == nil {
		auditor = audit.NewRecorder(nil)
	}
	return &Engine{
		cfg:        cfg,
		prefs:      deps.Preferences,
		history:    deps.History,
		translator: deps.Translator,
		speech:     deps.Speech,
		model:      deps.Model,
		tools:      deps.Tools,
		auditor:    auditor,
		logger:     slog.Default().With("component", "engine"),
	}
}

// turn carries per-turn state through the pipeline.
type turn struct {
	user    string
	lang    string
	isAudio bool
	outcome string
}

// Process runs one turn. Provider and storage failures are absorbed into an
// apology reply; the only error is a request without a user.
func (e *Engine) Process(ctx context.Context, req Request) (*Reply, error) {
	if strings.TrimSpace(req.User) == "" {
		return nil, ErrNoUser
	}

	start := time.Now()
	t := &turn{user: req.User, isAudio: len(req.Audio) > 0}

	reply := e.run(ctx, t, req)

	kind := string(reply.Kind)
	if t.outcome == "apology" {
		kind = t.outcome
	}
	metrics.TurnsTotal.WithLabelValues(kind).Inc()
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	e.auditor.Record(ctx, req.User, audit.EventTurnCompleted, severityFor(t.outcome),
		fmt.Sprintf("kind=%s outcome=%s duration_ms=%d", reply.Kind, t.outcome, time.Since(start).Milliseconds()))

	return reply, nil
}

func (e *Engine) run(ctx context.Context, t *turn, req Request) *Reply {
	text := req.Text
	if t.isAudio {
		text = e.transcribe(ctx, t, req.Audio)
	}

	lang, err := e.prefs.Language(ctx, t.user)
	if err != nil {
		e.logger.Error("engine: loading preference", "error", err, "user", t.user)
		return e.apologize(ctx, t)
	}
	t.lang = lang.ProviderCode()

	if lang == "" && strings.TrimSpace(text) != "" {
		if detected := e.translator.DetectLanguage(ctx, text); detected != e.translator.BaseLanguage() {
			e.logger.Info("engine: inbound text not in base language and no preference set",
				"user", t.user, "detected", detected)
		}
	}

	// Nothing to answer: the model and tools are not consulted, so the turn
	// has no side effects on history or preferences.
	if strings.TrimSpace(text) == "" {
		t.outcome = "blank"
		return &Reply{Body: e.appendMenu(ctx, e.translate(ctx, NotUnderstoodText, t.lang, outbound), t.lang), Kind: KindText}
	}

	text = e.translate(ctx, text, t.lang, inbound)
	if err := e.history.Append(ctx, t.user, session.RoleUser, text); err != nil {
		e.logger.Error("engine: appending user turn", "error", err, "user", t.user)
		return e.apologize(ctx, t)
	}

	messages, err := e.buildContext(ctx, t.user)
	if err != nil {
		e.logger.Error("engine: loading history", "error", err, "user", t.user)
		return e.apologize(ctx, t)
	}

	completion, err := e.complete(ctx, messages)
	if err != nil {
		metrics.ProviderFailuresTotal.WithLabelValues("llm").Inc()
		e.logger.Error("engine: model completion failed", "error", err, "user", t.user)
		return e.apologize(ctx, t)
	}

	if call, ok := completion.FirstToolCall(); ok {
		if n := len(completion.ToolCalls); n > 1 {
			e.logger.Debug("engine: ignoring extra tool calls", "count", n-1, "user", t.user)
		}
		candidate, ok := e.runTool(ctx, t, call)
		if !ok {
			return e.apologize(ctx, t)
		}
		t.outcome = "tool:" + call.Name
		// Tool output is always delivered as text.
		return &Reply{Body: e.appendMenu(ctx, e.translate(ctx, candidate, t.lang, outbound), t.lang), Kind: KindText}
	}

	candidate := completion.Content
	e.remember(ctx, t, candidate)
	t.outcome = "answer"
	out := e.translate(ctx, candidate, t.lang, outbound)

	if t.isAudio {
		link, err := e.speech.Synthesize(ctx, out)
		if err == nil {
			return &Reply{Body: link, Kind: KindAudio}
		}
		metrics.ProviderFailuresTotal.WithLabelValues("speech").Inc()
		e.logger.Warn("engine: speech synthesis failed, replying with text", "error", err, "user", t.user)
	}

	return &Reply{Body: e.appendMenu(ctx, out, t.lang), Kind: KindText}
}

func (e *Engine) transcribe(ctx context.Context, t *turn, audio []byte) string {
	text, err := e.speech.Transcribe(ctx, audio)
	if err != nil {
		metrics.ProviderFailuresTotal.WithLabelValues("speech").Inc()
		e.logger.Warn("engine: transcription failed", "error", err, "user", t.user)
		return ""
	}
	return text
}

func (e *Engine) buildContext(ctx context.Context, userID string) ([]llm.Message, error) {
	history, err := e.history.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleDeveloper, Content: e.cfg.Prompt})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	return messages, nil
}

func (e *Engine) complete(ctx context.Context, messages []llm.Message) (*llm.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	return e.model.Complete(ctx, &llm.Request{
		Messages:  messages,
		Tools:     tools.Definitions(),
		MaxTokens: e.cfg.MaxTokens,
	})
}

// runTool dispatches call and returns the base-language reply candidate.
// ok is false when the turn should end with an apology.
func (e *Engine) runTool(ctx context.Context, t *turn, call llm.ToolCall) (string, bool) {
	args, err := call.ParsedArguments()
	if err != nil {
		e.logger.Error("engine: malformed tool arguments", "error", err, "tool", call.Name, "user", t.user)
		return "", false
	}

	res, err := e.tools.Dispatch(ctx, t.user, tools.Invocation{Name: tools.Name(call.Name), Arguments: args})
	switch {
	case errors.Is(err, preference.ErrInvalidLanguage):
		e.logger.Info("engine: unsupported language requested", "error", err, "user", t.user)
		return UnsupportedLanguageText, true
	case errors.Is(err, tools.ErrMissingArgument):
		e.logger.Info("engine: tool call missing arguments", "error", err, "user", t.user)
		return MissingDetailsText, true
	case err != nil:
		e.logger.Error("engine: tool failed", "error", err, "tool", call.Name, "user", t.user)
		return "", false
	}

	if !res.NoOp {
		e.remember(ctx, t, res.Text)
	}

	// A language change applies to this very reply.
	if tools.Name(call.Name) == tools.UpdateUserPreference && !res.NoOp {
		if lang, err := e.prefs.Language(ctx, t.user); err == nil {
			t.lang = lang.ProviderCode()
		}
	}
	return res.Text, true
}

// remember appends a base-language assistant turn. Failures are logged only;
// the reply is already computed.
func (e *Engine) remember(ctx context.Context, t *turn, content string) {
	if err := e.history.Append(ctx, t.user, session.RoleAssistant, content); err != nil {
		e.logger.Warn("engine: appending assistant turn", "error", err, "user", t.user)
	}
}

func (e *Engine) apologize(ctx context.Context, t *turn) *Reply {
	t.outcome = "apology"
	return &Reply{Body: e.translate(ctx, ApologyText, t.lang, outbound), Kind: KindText}
}

func severityFor(outcome string) string {
	if outcome == "apology" {
		return audit.SeverityError
	}
	return audit.SeverityInfo
}
