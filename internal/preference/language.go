package preference

import (
	"errors"
	"strings"
)

// ErrInvalidLanguage is returned for codes outside the supported set.
var ErrInvalidLanguage = errors.New("unsupported language")

// Language is a driver-facing language code.
type Language string

const (
	English  Language = "en"
	Spanish  Language = "es"
	Hindi    Language = "hi"
	French   Language = "fr"
	Nepali   Language = "ne"
	German   Language = "ge"
	Japanese Language = "ja"
)

var languageNames = map[Language]string{
	English:  "english",
	Spanish:  "spanish",
	Hindi:    "hindi",
	French:   "french",
	Nepali:   "nepali",
	German:   "german",
	Japanese: "japanese",
}

// Languages returns the supported codes in a stable order.
func Languages() []Language {
	return []Language{English, Spanish, Hindi, French, Nepali, German, Japanese}
}

// ParseLanguage normalizes code and checks it against the supported set.
// Region-qualified codes ("fr-CA") resolve to their primary subtag.
func ParseLanguage(code string) (Language, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if code == "de" {
		code = string(German)
	}
	l := Language(code)
	if !l.Valid() {
		return "", ErrInvalidLanguage
	}
	return l, nil
}

func (l Language) Valid() bool {
	_, ok := languageNames[l]
	return ok
}

// Name is the lower-case English name used in confirmations.
func (l Language) Name() string {
	return languageNames[l]
}

// ProviderCode maps the stored code to the ISO 639-1 code translation
// providers expect. German is stored as "ge" but translated as "de".
func (l Language) ProviderCode() string {
	if l == German {
		return "de"
	}
	return string(l)
}

func (l Language) String() string {
	return string(l)
}
