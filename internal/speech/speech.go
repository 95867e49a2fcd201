// Package speech converts driver voice notes to text and replies to audio.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider is a speech-to-text and text-to-speech backend.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Gateway bounds provider calls with a timeout and stores synthesized audio.
type Gateway struct {
	provider Provider
	files    *FileStore
	timeout  time.Duration
	logger   *slog.Logger
}

func NewGateway(provider Provider, files *FileStore, timeout time.Duration) *Gateway {
	return &Gateway{
		provider: provider,
		files:    files,
		timeout:  timeout,
		logger:   slog.Default().With("component", "speech"),
	}
}

// Transcribe returns the spoken text of an audio clip.
func (g *Gateway) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.provider.Transcribe(ctx, audio, "voice.ogg")
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Synthesize renders text to an mp3 in the media directory and returns the
// public URL of the file.
func (g *Gateway) Synthesize(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	audio, err := g.provider.Speak(ctx, text)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}

	name, err := g.files.Save(audio, ".mp3")
	if err != nil {
		return "", err
	}
	g.logger.Debug("stored synthesized audio", "file", name, "bytes", len(audio))
	return g.files.URL(name), nil
}
