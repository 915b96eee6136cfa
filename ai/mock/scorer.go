package mock

import (
	"context"
	"sync"
)

// MockScorer is a test double for ai.Scorer.
type MockScorer struct {
	// ScoreFunc is called by ScorePassages if set.
	// If nil, every passage scores 0.5.
	ScoreFunc func(ctx context.Context, query string, passages []string) ([]float32, error)

	mu        sync.Mutex
	callCount int
}

// NewMockScorer creates a mock scorer with default flat scoring.
func NewMockScorer() *MockScorer {
	return &MockScorer{}
}

// ScorePassages returns one score per passage.
func (m *MockScorer) ScorePassages(ctx context.Context, query string, passages []string) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, query, passages)
	}

	scores := make([]float32, len(passages))
	for i := range scores {
		scores[i] = 0.5
	}
	return scores, nil
}

// CallCount returns the number of ScorePassages calls.
func (m *MockScorer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
