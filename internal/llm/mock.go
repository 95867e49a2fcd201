package llm

import (
	"context"
	"sync"
)

// Mock implements Provider for tests.
type Mock struct {
	CompleteFunc func(ctx context.Context, req *Request) (*Completion, error)

	mu       sync.Mutex
	requests []*Request
}

// NewMock returns a Mock that answers every request with text.
func NewMock(text string) *Mock {
	return &Mock{
		CompleteFunc: func(context.Context, *Request) (*Completion, error) {
			return &Completion{Content: text, FinishReason: "stop"}, nil
		},
	}
}

func (m *Mock) Complete(ctx context.Context, req *Request) (*Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc == nil {
		return nil, ErrNoChoices
	}
	return m.CompleteFunc(ctx, req)
}

// Requests returns every request seen so far.
func (m *Mock) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

var _ Provider = (*Mock)(nil)
