// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/scholarquery/ai"
	"github.com/poiesic/scholarquery/core"
	"github.com/poiesic/scholarquery/resilience"
)

const (
	defaultTokenBudget = 3072
	defaultMaxTokens   = 512
	defaultTemperature = 0.1

	generateOperation = "generate"
)

// Orchestrator builds grounded answers from retrieval hits. It packs as many
// passages as the token budget allows into a numbered prompt, calls the
// generation model through the resilience executor, and resolves [n] citation
// markers back to the hits. Generation failure degrades the response instead
// of failing the query.
type Orchestrator struct {
	generator ai.Generator
	executor  *resilience.Executor
	budget    int
	counter   TokenCounter
	params    ai.GenerationParams
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTokenBudget caps the prompt size in tokens.
// Default is 3072.
func WithTokenBudget(budget int) Option {
	return func(o *Orchestrator) {
		if budget > 0 {
			o.budget = budget
		}
	}
}

// WithTokenCounter replaces the cl100k_base token counter.
func WithTokenCounter(counter TokenCounter) Option {
	return func(o *Orchestrator) {
		if counter != nil {
			o.counter = counter
		}
	}
}

// WithExecutor sets the resilience executor guarding generation calls.
// Default is an executor with production defaults.
func WithExecutor(executor *resilience.Executor) Option {
	return func(o *Orchestrator) {
		if executor != nil {
			o.executor = executor
		}
	}
}

// WithGenerationParams sets model parameters for answer generation.
// Defaults are 512 max tokens at temperature 0.1.
func WithGenerationParams(params ai.GenerationParams) Option {
	return func(o *Orchestrator) {
		o.params = params
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator over the given generator.
func NewOrchestrator(generator ai.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator: generator,
		executor:  resilience.NewExecutor(resilience.DefaultConfig()),
		budget:    defaultTokenBudget,
		counter:   defaultTokenCounter,
		params: ai.GenerationParams{
			MaxTokens:   defaultMaxTokens,
			Temperature: defaultTemperature,
		},
		logger: slog.Default().With("component", "rag"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Answer generates a grounded answer for the question from the hits.
// With no hits it answers nothing without calling the model. When the model
// is unavailable after retries, the response carries Unavailable instead of
// an error so callers can still serve the retrieval results.
func (o *Orchestrator) Answer(ctx context.Context, question string, hits []*core.Hit) (*core.RAGResponse, error) {
	if question == "" {
		return nil, core.ErrEmptyText
	}
	if len(hits) == 0 {
		return &core.RAGResponse{}, nil
	}

	prompt, used, truncated := o.buildPrompt(question, hits)

	generation, err := o.generate(ctx, prompt)
	if err != nil {
		if !errors.Is(err, core.ErrGenerationUnavailable) {
			return nil, err
		}
		o.logger.Warn("generation unavailable, serving retrieval only", "error", err)
		return &core.RAGResponse{Truncated: truncated, Unavailable: true}, nil
	}

	citations := parseCitations(generation.Text, used)
	for i := range citations {
		citations[i].DocId = hits[citations[i].HitIndex].Document.Id
	}

	o.logger.Debug("answer generated",
		"passages", used,
		"truncated", truncated,
		"citations", len(citations),
		"prompt_tokens", generation.PromptTokens,
		"completion_tokens", generation.CompletionTokens)

	return &core.RAGResponse{
		Answer:    generation.Text,
		Citations: citations,
		Truncated: truncated,
	}, nil
}

// generate calls the model through the resilience executor. Cancellation
// surfaces as the context error; an exhausted retry budget surfaces as
// core.ErrGenerationUnavailable.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (*ai.Generation, error) {
	var generation *ai.Generation
	err := o.executor.Execute(ctx, generateOperation, func(ctx context.Context) error {
		var genErr error
		generation, genErr = o.generator.Generate(ctx, prompt, o.params)
		return genErr
	}, resilience.TransientClassifier)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", core.ErrGenerationUnavailable, err)
	}
	return generation, nil
}

// buildPrompt packs whole passages into the token budget, in hit order.
// The first passage is always included so the model has something to ground
// on. Returns the prompt, the number of passages included, and whether any
// were dropped.
func (o *Orchestrator) buildPrompt(question string, hits []*core.Hit) (string, int, bool) {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nPassages:\n")

	remaining := o.budget - o.counter(b.String())
	used := 0
	for i, hit := range hits {
		passage := fmt.Sprintf("[%d] %s\n", i+1, hit.Document.Text)
		cost := o.counter(passage)
		if cost > remaining && used > 0 {
			break
		}
		b.WriteString(passage)
		remaining -= cost
		used++
	}

	return b.String(), used, used < len(hits)
}
