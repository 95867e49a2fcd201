package translation

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"

	"github.com/haulbot/dispatcher/internal/config"
)

const cloudTranslationScope = "https://www.googleapis.com/auth/cloud-translation"

// GoogleProvider calls the Cloud Translation v2 API.
type GoogleProvider struct {
	svc *translate.Service
}

// NewGoogleProvider authenticates with a service-account file when one is
// configured and falls back to an API key otherwise.
func NewGoogleProvider(ctx context.Context, cfg config.GoogleConfig) (*GoogleProvider, error) {
	var opts []option.ClientOption

	if cfg.TranslateCredsFile != "" {
		data, err := os.ReadFile(cfg.TranslateCredsFile)
		if err != nil {
			return nil, fmt.Errorf("reading translate credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, cloudTranslationScope)
		if err != nil {
			return nil, fmt.Errorf("parsing translate credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	} else {
		opts = append(opts, option.WithAPIKey(cfg.TranslateAPIKey))
	}

	if cfg.TranslateEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.TranslateEndpoint))
	}

	return NewGoogleProviderWithOptions(ctx, opts...)
}

// NewGoogleProviderWithOptions builds the provider from raw client options.
func NewGoogleProviderWithOptions(ctx context.Context, opts ...option.ClientOption) (*GoogleProvider, error) {
	svc, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating translate service: %w", err)
	}
	return &GoogleProvider{svc: svc}, nil
}

func (p *GoogleProvider) Translate(ctx context.Context, text, src, dst string) (string, error) {
	call := p.svc.Translations.List([]string{text}, dst).Format("text").Context(ctx)
	if src != "" {
		call = call.Source(src)
	}
	resp, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("google translate: %w", err)
	}
	if len(resp.Translations) == 0 {
		return "", fmt.Errorf("google translate: empty response")
	}
	return resp.Translations[0].TranslatedText, nil
}

func (p *GoogleProvider) Detect(ctx context.Context, text string) (string, error) {
	resp, err := p.svc.Detections.List([]string{text}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google detect: %w", err)
	}
	if len(resp.Detections) == 0 || len(resp.Detections[0]) == 0 {
		return "", nil
	}
	return resp.Detections[0][0].Language, nil
}

var _ Provider = (*GoogleProvider)(nil)
