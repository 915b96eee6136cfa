package mock

import (
	"context"
	"sync"

	"github.com/poiesic/scholarquery/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, returns a canned answer citing the first passage.
	GenerateFunc func(ctx context.Context, prompt string, params ai.GenerationParams) (*ai.Generation, error)

	mu        sync.Mutex
	callCount int
	prompts   []string
}

// NewMockGenerator creates a mock generator with default canned behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate records the prompt and returns either the injected behavior's
// result or a canned grounded answer.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, params ai.GenerationParams) (*ai.Generation, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, params)
	}

	return &ai.Generation{
		Text:             "The retrieved passages answer the question [1].",
		PromptTokens:     len(prompt) / 4,
		CompletionTokens: 12,
	}, nil
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompt returns the prompt of the most recent Generate call, or "".
func (m *MockGenerator) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.prompts = nil
	m.GenerateFunc = nil
}
