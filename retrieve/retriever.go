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


package retrieve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/scholarquery/ai"
	"github.com/poiesic/scholarquery/cache"
	"github.com/poiesic/scholarquery/core"
	"github.com/poiesic/scholarquery/index"
	"github.com/poiesic/scholarquery/resilience"
)

const (
	defaultEmbeddingCacheSize = 4096

	embedOperation = "embed-query"
)

// Retriever turns query text into ranked hits: it embeds the text, searches
// the vector index, and returns the top matches. Query embeddings are cached
// by text hash so repeated queries skip the embedding call; embedding calls
// go through the resilience executor.
type Retriever struct {
	embedder   ai.Embedder
	index      *index.Index
	embeddings *cache.Cache[[]float32]
	executor   *resilience.Executor
	logger     *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithEmbeddingCacheSize bounds the query-embedding cache.
// Default is 4096 entries.
func WithEmbeddingCacheSize(capacity int) Option {
	return func(r *Retriever) error {
		c, err := cache.New[[]float32](capacity)
		if err != nil {
			return err
		}
		r.embeddings = c
		return nil
	}
}

// WithExecutor sets the resilience executor guarding embedding calls.
// Default is an executor with production defaults.
func WithExecutor(executor *resilience.Executor) Option {
	return func(r *Retriever) error {
		if executor != nil {
			r.executor = executor
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a retriever over the given embedder and index.
func NewRetriever(embedder ai.Embedder, ix *index.Index, opts ...Option) (*Retriever, error) {
	embeddings, err := cache.New[[]float32](defaultEmbeddingCacheSize)
	if err != nil {
		return nil, err
	}
	r := &Retriever{
		embedder:   embedder,
		index:      ix,
		embeddings: embeddings,
		executor:   resilience.NewExecutor(resilience.DefaultConfig()),
		logger:     slog.Default().With("component", "retriever"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Retrieve returns the top matches for the query, ordered by descending
// cosine similarity. An empty or filtered-out corpus yields an empty result,
// not an error; only a failed embedding call is an error.
func (r *Retriever) Retrieve(ctx context.Context, query *core.Query) (*core.RetrievalResult, error) {
	if err := core.ValidateQuery(query); err != nil {
		return nil, err
	}

	vector, err := r.Embed(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.index.Search(vector, query.TopK, query.TopicFilter)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("retrieved",
		"top_k", query.TopK,
		"filter", query.TopicFilter,
		"hits", len(hits))

	return &core.RetrievalResult{Hits: hits}, nil
}

// Embed returns the unit-norm embedding for the text, from cache when
// available. Concurrent misses for the same text share one embedding call.
// Misses go to the embedding host with retry and backoff; an exhausted retry
// budget surfaces as core.ErrServiceUnavailable.
func (r *Retriever) Embed(ctx context.Context, text string) ([]float32, error) {
	return r.embeddings.GetOrCompute(cache.TextKey(text), func() ([]float32, error) {
		var vector []float32
		err := r.executor.Execute(ctx, embedOperation, func(ctx context.Context) error {
			var embedErr error
			vector, embedErr = r.embedder.EmbedText(ctx, text)
			return embedErr
		}, resilience.TransientClassifier)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
		}
		return vector, nil
	})
}

// InvalidateEmbeddings drops the query-embedding cache, for use after the
// embedding model changes.
func (r *Retriever) InvalidateEmbeddings() {
	r.embeddings.Clear()
}
