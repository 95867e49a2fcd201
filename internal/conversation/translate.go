package conversation

import (
	"context"

	"github.com/haulbot/dispatcher/internal/metrics"
)

type direction int

const (
	inbound  direction = iota // driver language -> base
	outbound                  // base -> driver language
)

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, text, src, dst string) (string, error)
	DetectLanguage(ctx context.Context, text string) string
	BaseLanguage() string
}

// translateText converts text between base and lang in the given direction.
// An empty lang means the driver uses the base language.
func translateText(ctx context.Context, tr Translator, text, lang string, dir direction) (string, error) {
	base := tr.BaseLanguage()
	if lang == "" || lang == base {
		return text, nil
	}
	if dir == inbound {
		return tr.Translate(ctx, text, lang, base)
	}
	return tr.Translate(ctx, text, base, lang)
}

// translate is translateText with the failure policy applied: on error the
// original text is kept.
func (e *Engine) translate(ctx context.Context, text, lang string, dir direction) string {
	out, err := translateText(ctx, e.translator, text, lang, dir)
	if err != nil {
		metrics.ProviderFailuresTotal.WithLabelValues("translation").Inc()
		e.logger.Warn("engine: translation failed, keeping original text", "error", err, "lang", lang)
		return text
	}
	return out
}
