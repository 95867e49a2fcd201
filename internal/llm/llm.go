// Package llm talks to a chat completion model with function calling.
package llm

import (
	"context"
	"errors"
)

// ErrNoChoices is returned when the provider answers without a completion.
var ErrNoChoices = errors.New("llm: no choices returned")

// Provider produces one completion for a context.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// Request is a single completion call.
type Request struct {
	Model     string
	Messages  []Message
	Tools     []Tool
	MaxTokens int
}

// Completion is the model's answer: plain text, tool calls, or both.
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
	Model        string
	LatencyMs    int64
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FirstToolCall returns the first requested call, if any.
func (c *Completion) FirstToolCall() (ToolCall, bool) {
	if c == nil || len(c.ToolCalls) == 0 {
		return ToolCall{}, false
	}
	return c.ToolCalls[0], true
}
