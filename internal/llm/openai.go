package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/haulbot/dispatcher/internal/openai"
)

// OpenAI implements Provider against the chat completions endpoint.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

func NewOpenAI(client *openai.Client, model string, maxTokens int) *OpenAI {
	return &OpenAI{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		logger:    slog.Default().With("component", "llm.openai"),
	}
}

func (o *OpenAI) Complete(ctx context.Context, req *Request) (*Completion, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = o.model
	}

	resp, err := o.client.PostJSON(ctx, "/chat/completions", o.buildPayload(req, model))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := result.Choices[0]
	latency := time.Since(start).Milliseconds()

	o.logger.Debug("completion",
		"model", result.Model,
		"finish_reason", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
		"total_tokens", result.Usage.TotalTokens,
		"latency_ms", latency,
	)

	return &Completion{
		Content:      choice.Message.Content,
		ToolCalls:    parseToolCalls(choice.Message.ToolCalls),
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
		Model:     result.Model,
		LatencyMs: latency,
	}, nil
}

func (o *OpenAI) buildPayload(req *Request, model string) map[string]any {
	messages := make([]map[string]any, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = map[string]any{
			"role":    string(msg.Role),
			"content": msg.Content,
		}
	}

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.maxTokens
	}
	if maxTokens > 0 {
		payload["max_tokens"] = maxTokens
	}

	if len(req.Tools) > 0 {
		tools := make([]map[string]any, len(req.Tools))
		for i, t := range req.Tools {
			fn := map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			}
			if t.Strict {
				fn["strict"] = true
			}
			tools[i] = map[string]any{
				"type":     "function",
				"function": fn,
			}
		}
		payload["tools"] = tools
	}

	return payload
}

func parseToolCalls(calls []apiToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]ToolCall, len(calls))
	for i, call := range calls {
		result[i] = ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
	}
	return result
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string        `json:"role"`
			Content   string        `json:"content"`
			ToolCalls []apiToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

var _ Provider = (*OpenAI)(nil)
