package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/haulbot/dispatcher/internal/config"
	"github.com/haulbot/dispatcher/internal/openai"
)

// OpenAI implements Provider with the audio transcription and speech
// endpoints.
type OpenAI struct {
	client             *openai.Client
	transcriptionModel string
	speechModel        string
	voice              string
}

func NewOpenAI(client *openai.Client, cfg config.OpenAIConfig) *OpenAI {
	return &OpenAI{
		client:             client,
		transcriptionModel: cfg.TranscriptionModel,
		speechModel:        cfg.SpeechModel,
		voice:              cfg.Voice,
	}
}

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("model", o.transcriptionModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio part: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	resp, err := o.client.Post(ctx, "/audio/transcriptions", w.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return result.Text, nil
}

func (o *OpenAI) Speak(ctx context.Context, text string) ([]byte, error) {
	payload := map[string]any{
		"model": o.speechModel,
		"voice": o.voice,
		"input": text,
	}

	resp, err := o.client.PostJSON(ctx, "/audio/speech", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	return audio, nil
}

var _ Provider = (*OpenAI)(nil)
