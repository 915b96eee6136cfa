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


package rerank

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/scholarquery/ai"
	"github.com/poiesic/scholarquery/core"
)

const (
	defaultVectorWeight  = 0.7
	defaultLexicalWeight = 0.3
)

// Reranker reorders retrieval hits by a second, finer relevance signal.
// The built-in signal blends the vector score with lexical overlap between
// query and passage. An optional external scorer replaces the blend; when it
// fails, each candidate falls back to the blend score and the result is
// marked degraded rather than failed.
//
// Reranking only reorders: it never adds or drops candidates.
type Reranker struct {
	scorer        ai.Scorer
	vectorWeight  float32
	lexicalWeight float32
	logger        *slog.Logger
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithScorer sets an external relevance scorer used instead of the
// built-in blend. Default is no external scorer.
func WithScorer(scorer ai.Scorer) Option {
	return func(r *Reranker) {
		r.scorer = scorer
	}
}

// WithWeights sets the vector and lexical weights of the built-in blend.
// Defaults are 0.7 and 0.3.
func WithWeights(vector, lexical float32) Option {
	return func(r *Reranker) {
		r.vectorWeight = vector
		r.lexicalWeight = lexical
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reranker) {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
	}
}

// NewReranker creates a reranker with the built-in blend signal.
func NewReranker(opts ...Option) *Reranker {
	r := &Reranker{
		vectorWeight:  defaultVectorWeight,
		lexicalWeight: defaultLexicalWeight,
		logger:        slog.Default().With("component", "reranker"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank scores and reorders the hits in place, descending by rerank score
// with ties broken by document id. Returns true if the external scorer was
// configured but unavailable and the blend stood in for it.
func (r *Reranker) Rerank(ctx context.Context, query string, hits []*core.Hit) bool {
	if len(hits) == 0 {
		return false
	}

	degraded := false
	scores, ok := r.externalScores(ctx, query, hits)
	if r.scorer != nil && !ok {
		degraded = true
	}

	for i, hit := range hits {
		if ok {
			hit.RerankScore = scores[i]
		} else {
			hit.RerankScore = r.blend(query, hit)
		}
		hit.Reranked = true
	}

	slices.SortFunc(hits, func(a, b *core.Hit) int {
		if a.RerankScore > b.RerankScore {
			return -1
		}
		if a.RerankScore < b.RerankScore {
			return 1
		}
		return strings.Compare(a.Document.Id, b.Document.Id)
	})

	return degraded
}

// blend combines the vector score with lexical overlap.
func (r *Reranker) blend(query string, hit *core.Hit) float32 {
	return r.vectorWeight*hit.Score + r.lexicalWeight*lexicalOverlap(hit.Document.Text, query)
}

// externalScores asks the configured scorer for per-passage relevance.
// Returns false when no scorer is configured or the call failed.
func (r *Reranker) externalScores(ctx context.Context, query string, hits []*core.Hit) ([]float32, bool) {
	if r.scorer == nil {
		return nil, false
	}

	passages := make([]string, len(hits))
	for i, hit := range hits {
		passages[i] = hit.Document.Text
	}

	scores, err := r.scorer.ScorePassages(ctx, query, passages)
	if err != nil || len(scores) != len(hits) {
		r.logger.Warn("external scorer unavailable, falling back to blend", "error", err)
		return nil, false
	}
	return scores, true
}
