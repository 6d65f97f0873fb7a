package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/poiesic/admissions/ai"
	"github.com/poiesic/admissions/core"
)

// MockGenerator is a test double for ai.Generator.
// It allows custom behavior injection via function fields.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, Generate returns Text with a small fixed usage.
	GenerateFunc func(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) (*ai.Generation, error)

	// Text is the default response when GenerateFunc is nil.
	Text string

	callCount atomic.Int64
	mu        sync.Mutex
	calls     [][]ai.Message
}

// NewMockGenerator creates a mock generator that answers with text.
func NewMockGenerator(text string) *MockGenerator {
	return &MockGenerator{Text: text}
}

// Generate records the messages and returns the injected or default response.
func (m *MockGenerator) Generate(ctx context.Context, messages []ai.Message, opts ...ai.GenerateOption) (*ai.Generation, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.calls = append(m.calls, append([]ai.Message(nil), messages...))
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, messages, ai.ApplyGenerateOptions(opts...))
	}
	return &ai.Generation{
		Text:  m.Text,
		Usage: core.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	return int(m.callCount.Load())
}

// Calls returns the messages of every Generate call in order.
func (m *MockGenerator) Calls() [][]ai.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]ai.Message(nil), m.calls...)
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.callCount.Store(0)
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
	m.GenerateFunc = nil
}
