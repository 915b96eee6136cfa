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


package scholarquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/scholarquery/ai"
	"github.com/poiesic/scholarquery/ai/openai"
	"github.com/poiesic/scholarquery/cache"
	"github.com/poiesic/scholarquery/cluster"
	"github.com/poiesic/scholarquery/config"
	"github.com/poiesic/scholarquery/core"
	"github.com/poiesic/scholarquery/index"
	"github.com/poiesic/scholarquery/ingest"
	"github.com/poiesic/scholarquery/rag"
	"github.com/poiesic/scholarquery/reindex"
	"github.com/poiesic/scholarquery/rerank"
	"github.com/poiesic/scholarquery/retrieve"
	"github.com/poiesic/scholarquery/storage"
	badgerstore "github.com/poiesic/scholarquery/storage/badger"
)

// QueryResult is the full outcome of one query: the ranked passages and,
// when requested, the generated answer.
type QueryResult struct {
	Retrieval *core.RetrievalResult
	// Answer is nil unless the query asked for generation.
	Answer *core.RAGResponse
}

// Engine assembles the retrieval stack: durable document storage, the
// in-memory vector index, topic clustering, reranking, answer generation,
// and the result cache. It is the single entry point the API server and the
// CLI build on.
type Engine struct {
	cfg            *config.Config
	backend        *badgerstore.Backend
	docRepo        storage.DocumentRepository
	clusteringRepo storage.ClusteringRepository
	provider       ai.AIProvider
	index          *index.Index
	retriever      *retrieve.Retriever
	reranker       *rerank.Reranker
	rag            *rag.Orchestrator
	clusterer      *cluster.Clusterer
	pipeline       *ingest.Pipeline
	results        *cache.Cache[*QueryResult]
	logger         *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	provider ai.AIProvider
	scorer   ai.Scorer
}

// WithAIProvider injects an AI provider, bypassing the OpenAI-compatible
// clients built from the configuration. Intended for tests.
func WithAIProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithScorer sets an external relevance scorer for reranking.
// Without one, reranking uses the built-in blend signal.
func WithScorer(scorer ai.Scorer) EngineOption {
	return func(o *engineOptions) {
		o.scorer = scorer
	}
}

// NewEngine opens storage, replays persisted documents into the vector
// index, restores the latest topic clustering, and wires the query stack.
func NewEngine(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badgerstore.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return nil, err
	}

	docRepo, err := badgerstore.NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	clusteringRepo, err := badgerstore.NewClusteringRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		aiCfg := ai.NewConfig(
			ai.WithEmbeddingHost(cfg.AI.EmbeddingHost),
			ai.WithGenerationHost(cfg.AI.GenerationHost),
			ai.WithEmbeddingModel(cfg.AI.EmbeddingModel),
			ai.WithGenerationModel(cfg.AI.GenerationModel),
			ai.WithEmbeddingDim(cfg.AI.EmbeddingDim),
			ai.WithMaxTokens(cfg.AI.MaxTokens),
			ai.WithTemperature(cfg.AI.Temperature),
		)
		provider, err = openai.NewProvider(aiCfg)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	ix, err := index.New(cfg.AI.EmbeddingDim)
	if err != nil {
		backend.Close()
		return nil, err
	}

	results, err := cache.New[*QueryResult](cfg.Retrieval.ResultCacheSize)
	if err != nil {
		backend.Close()
		return nil, err
	}

	retriever, err := retrieve.NewRetriever(provider.Embedder(), ix,
		retrieve.WithEmbeddingCacheSize(cfg.Retrieval.EmbeddingCacheSize))
	if err != nil {
		backend.Close()
		return nil, err
	}

	clusterer := cluster.NewClusterer(cluster.WithSeed(cfg.Clustering.Seed))

	e := &Engine{
		cfg:            cfg,
		backend:        backend,
		docRepo:        docRepo,
		clusteringRepo: clusteringRepo,
		provider:       provider,
		index:          ix,
		retriever:      retriever,
		reranker:       rerank.NewReranker(rerankOptions(options.scorer)...),
		rag: rag.NewOrchestrator(provider.Generator(),
			rag.WithTokenBudget(cfg.RAG.TokenBudget),
			rag.WithGenerationParams(ai.GenerationParams{
				MaxTokens:   cfg.AI.MaxTokens,
				Temperature: cfg.AI.Temperature,
			})),
		clusterer: clusterer,
		results:   results,
		logger:    slog.Default().With("component", "engine"),
	}

	pipelineOpts := []ingest.Option{
		ingest.WithClustering(clusterer, clusteringRepo),
		ingest.WithOnChange(e.invalidate),
	}
	if cfg.Clustering.AutoMinDocs > 0 {
		pipelineOpts = append(pipelineOpts,
			ingest.WithAutoRecluster(cfg.Clustering.K, cfg.Clustering.AutoMinDocs))
	}
	e.pipeline, err = ingest.NewPipeline(docRepo, ix, provider.Embedder(), pipelineOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	if err := e.restore(context.Background()); err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

func rerankOptions(scorer ai.Scorer) []rerank.Option {
	if scorer == nil {
		return nil
	}
	return []rerank.Option{rerank.WithScorer(scorer)}
}

// restore replays persisted documents into the index and reinstalls the
// latest clustering snapshot.
func (e *Engine) restore(ctx context.Context) error {
	loaded := 0
	err := e.docRepo.AllDocuments(ctx, func(doc *core.Document) error {
		if err := e.index.Insert(doc); err != nil {
			return fmt.Errorf("replaying document %s: %w", doc.Id, err)
		}
		loaded++
		return nil
	})
	if err != nil {
		return err
	}

	clustering, err := e.clusteringRepo.LatestClustering(ctx)
	if err != nil && !errors.Is(err, storage.ErrNoClustering) {
		return err
	}
	if clustering != nil {
		e.clusterer.Restore(clustering)
	}

	e.logger.Info("engine restored", "documents", loaded,
		"clustering", clustering != nil)
	return nil
}

// Query runs retrieval and, per the query's flags, reranking and answer
// generation. Identical concurrent queries share one execution; results are
// cached until the next corpus or topic mutation. Degraded results are
// served but never cached.
func (e *Engine) Query(ctx context.Context, q *core.Query) (*QueryResult, error) {
	if q == nil {
		return nil, core.ErrInvalidArgument
	}
	if q.TopK <= 0 {
		q.TopK = e.cfg.Retrieval.DefaultTopK
	}
	if q.TopK > e.cfg.Retrieval.MaxTopK {
		q.TopK = e.cfg.Retrieval.MaxTopK
	}

	key := fmt.Sprintf("%s:r%t:g%t",
		cache.QueryKey(q.Text, q.TopK, q.TopicFilter), q.Rerank, q.UseRAG)

	result, err := e.results.GetOrCompute(key, func() (*QueryResult, error) {
		return e.execute(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	if result.Retrieval.Degraded || (result.Answer != nil && result.Answer.Unavailable) {
		e.results.Invalidate(key)
	}
	return result, nil
}

func (e *Engine) execute(ctx context.Context, q *core.Query) (*QueryResult, error) {
	retrieval, err := e.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}

	if q.Rerank {
		retrieval.Degraded = e.reranker.Rerank(ctx, q.Text, retrieval.Hits)
	}

	result := &QueryResult{Retrieval: retrieval}
	if q.UseRAG {
		answer, err := e.rag.Answer(ctx, q.Text, retrieval.Hits)
		if err != nil {
			return nil, err
		}
		result.Answer = answer
	}
	return result, nil
}

// Ingest embeds, persists, and indexes documents synchronously.
func (e *Engine) Ingest(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	return e.pipeline.Ingest(ctx, docs...)
}

// Delete removes documents from storage and the index.
func (e *Engine) Delete(ctx context.Context, ids ...string) error {
	return e.pipeline.Delete(ctx, ids...)
}

// Recluster refits the topic model with k clusters and persists the snapshot.
func (e *Engine) Recluster(ctx context.Context, k int) (*core.Clustering, error) {
	if k <= 0 {
		k = e.cfg.Clustering.K
	}
	return e.pipeline.Recluster(ctx, k)
}

// Topics returns the active clustering snapshot, or nil before any fit.
func (e *Engine) Topics() *core.Clustering {
	return e.clusterer.Current()
}

// DocumentCount returns the number of indexed documents.
func (e *Engine) DocumentCount() int {
	return e.index.Len()
}

// Reindex re-embeds every stored document with the current embedding model.
// Derived state is stale in the new vector space: caches are dropped, and if
// a clustering was fitted it is refitted with the same cluster count.
func (e *Engine) Reindex(ctx context.Context, progress io.Writer) (int, error) {
	r := reindex.NewReindexer(e.docRepo, e.provider.Embedder(), e.index, nil, progress)
	processed, err := r.Run(ctx)
	if err != nil {
		return processed, err
	}
	e.retriever.InvalidateEmbeddings()
	e.invalidate()

	if current := e.clusterer.Current(); current != nil && processed > 0 {
		if _, err := e.pipeline.Recluster(ctx, len(current.Clusters)); err != nil {
			return processed, fmt.Errorf("refitting clusters after reindex: %w", err)
		}
	}
	return processed, nil
}

// invalidate drops the result cache after any corpus or topic mutation.
func (e *Engine) invalidate() {
	e.results.Clear()
}

// Close releases the pipeline, the AI provider, and storage.
func (e *Engine) Close() error {
	e.pipeline.Release()

	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
	}
	if err := e.docRepo.Close(); err != nil {
		e.logger.Error("error closing document repository", "err", err)
		return err
	}
	if err := e.clusteringRepo.Close(); err != nil {
		e.logger.Error("error closing clustering repository", "err", err)
		return err
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}
