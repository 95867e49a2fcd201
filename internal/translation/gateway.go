package translation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider is a remote machine-translation backend. Codes are ISO 639-1.
type Provider interface {
	Translate(ctx context.Context, text, src, dst string) (string, error)
	Detect(ctx context.Context, text string) (string, error)
}

// Gateway adds the identity and normalization rules on top of a Provider
// and bounds every call with a timeout.
type Gateway struct {
	provider Provider
	base     string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewGateway(provider Provider, baseLanguage string, timeout time.Duration) *Gateway {
	return &Gateway{
		provider: provider,
		base:     baseLanguage,
		timeout:  timeout,
		logger:   slog.Default().With("component", "translation"),
	}
}

// BaseLanguage is the pivot language model and tool text is produced in.
func (g *Gateway) BaseLanguage() string {
	return g.base
}

// Translate returns text unchanged when src equals dst or text is blank.
func (g *Gateway) Translate(ctx context.Context, text, src, dst string) (string, error) {
	if src == dst || strings.TrimSpace(text) == "" {
		return text, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.provider.Translate(ctx, text, src, dst)
	if err != nil {
		return "", fmt.Errorf("translating %s->%s: %w", src, dst, err)
	}
	return out, nil
}

// DetectLanguage reports the primary subtag of the detected language, or the
// base language when detection fails or yields nothing usable.
func (g *Gateway) DetectLanguage(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return g.base
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	code, err := g.provider.Detect(ctx, text)
	if err != nil {
		g.logger.Warn("language detection failed", "error", err)
		return g.base
	}
	if code = PrimarySubtag(code); code == "" || code == "und" {
		return g.base
	}
	return code
}

// PrimarySubtag lower-cases a BCP 47 tag and strips region and script
// ("en-US" -> "en").
func PrimarySubtag(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}
