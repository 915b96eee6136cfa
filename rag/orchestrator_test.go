package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/scholarquery/ai"
	"github.com/poiesic/scholarquery/ai/mock"
	"github.com/poiesic/scholarquery/core"
	"github.com/poiesic/scholarquery/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(id, text string) *core.Hit {
	return &core.Hit{Document: &core.Document{Id: id, Text: text}}
}

// wordCounter makes budgets easy to reason about in tests.
func wordCounter(text string) int {
	return len(strings.Fields(text))
}

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func TestAnswer_GroundedWithCitations(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.GenerateFunc = func(ctx context.Context, prompt string, params ai.GenerationParams) (*ai.Generation, error) {
		return &ai.Generation{Text: "Cats are felines [1], unlike stocks [2]. See also [1]."}, nil
	}
	o := NewOrchestrator(generator, WithExecutor(fastExecutor()))

	hits := []*core.Hit{hit("cats", "cats are feline animals"), hit("stocks", "stocks trade on the market")}
	resp, err := o.Answer(context.Background(), "what are cats?", hits)
	require.NoError(t, err)

	assert.False(t, resp.Unavailable)
	assert.False(t, resp.Truncated)
	require.Len(t, resp.Citations, 2)
	assert.Equal(t, core.Citation{HitIndex: 0, DocId: "cats"}, resp.Citations[0])
	assert.Equal(t, core.Citation{HitIndex: 1, DocId: "stocks"}, resp.Citations[1])

	// The prompt numbers passages in hit order.
	prompt := generator.LastPrompt()
	assert.Contains(t, prompt, "[1] cats are feline animals")
	assert.Contains(t, prompt, "[2] stocks trade on the market")
	assert.Contains(t, prompt, "what are cats?")
}

func TestAnswer_NoHitsSkipsGeneration(t *testing.T) {
	generator := mock.NewMockGenerator()
	o := NewOrchestrator(generator)

	resp, err := o.Answer(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Answer)
	assert.Zero(t, generator.CallCount())
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	o := NewOrchestrator(mock.NewMockGenerator())
	_, err := o.Answer(context.Background(), "", []*core.Hit{hit("a", "text")})
	assert.ErrorIs(t, err, core.ErrEmptyText)
}

func TestAnswer_BudgetTruncatesPassages(t *testing.T) {
	generator := mock.NewMockGenerator()
	o := NewOrchestrator(generator,
		WithExecutor(fastExecutor()),
		WithTokenCounter(wordCounter),
		WithTokenBudget(12))

	hits := []*core.Hit{
		hit("a", "short passage one"),
		hit("b", "short passage two"),
		hit("c", "this passage will not fit the remaining budget at all"),
	}
	resp, err := o.Answer(context.Background(), "question", hits)
	require.NoError(t, err)

	assert.True(t, resp.Truncated)
	prompt := generator.LastPrompt()
	assert.Contains(t, prompt, "[1] short passage one")
	assert.NotContains(t, prompt, "[3]")
}

func TestAnswer_FirstPassageAlwaysIncluded(t *testing.T) {
	generator := mock.NewMockGenerator()
	o := NewOrchestrator(generator,
		WithExecutor(fastExecutor()),
		WithTokenCounter(wordCounter),
		WithTokenBudget(1))

	resp, err := o.Answer(context.Background(), "question", []*core.Hit{
		hit("a", "a very long first passage that exceeds every budget"),
		hit("b", "second"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Truncated)
	assert.Contains(t, generator.LastPrompt(), "[1] a very long first passage")
}

func TestAnswer_GenerationFailureDegrades(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.GenerateFunc = func(ctx context.Context, prompt string, params ai.GenerationParams) (*ai.Generation, error) {
		return nil, errors.New("generation host down")
	}
	o := NewOrchestrator(generator, WithExecutor(fastExecutor()))

	resp, err := o.Answer(context.Background(), "question", []*core.Hit{hit("a", "text")})
	require.NoError(t, err)
	assert.True(t, resp.Unavailable)
	assert.Empty(t, resp.Answer)
	// Retried before degrading.
	assert.Equal(t, 2, generator.CallCount())
}

func TestGenerate_UnavailableAfterRetries(t *testing.T) {
	generator := mock.NewMockGenerator()
	boom := errors.New("generation host down")
	generator.GenerateFunc = func(ctx context.Context, prompt string, params ai.GenerationParams) (*ai.Generation, error) {
		return nil, boom
	}
	o := NewOrchestrator(generator, WithExecutor(fastExecutor()))

	_, err := o.generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, generator.CallCount())
}

func TestAnswer_ContextCancellationIsAnError(t *testing.T) {
	generator := mock.NewMockGenerator()
	o := NewOrchestrator(generator, WithExecutor(fastExecutor()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Answer(ctx, "question", []*core.Hit{hit("a", "text")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCitations(t *testing.T) {
	t.Run("ordered by first appearance, deduplicated", func(t *testing.T) {
		citations := parseCitations("see [2] and [1], also [2]", 3)
		require.Len(t, citations, 2)
		assert.Equal(t, 1, citations[0].HitIndex)
		assert.Equal(t, 0, citations[1].HitIndex)
	})

	t.Run("out of range markers dropped", func(t *testing.T) {
		citations := parseCitations("see [0] and [5]", 3)
		assert.Empty(t, citations)
	})

	t.Run("no markers", func(t *testing.T) {
		assert.Empty(t, parseCitations("plain answer", 3))
	})
}
