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


package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/scholarquery/ai"
	"github.com/poiesic/scholarquery/cluster"
	"github.com/poiesic/scholarquery/core"
	"github.com/poiesic/scholarquery/index"
	"github.com/poiesic/scholarquery/resilience"
	"github.com/poiesic/scholarquery/storage"
)

const (
	embedChunkSize = 32

	embedOperation = "embed-documents"
)

// Pipeline orchestrates document ingestion: embedding, persistence, and
// indexing happen synchronously so a returned ingest is immediately
// searchable; topic reclustering runs asynchronously on a worker pool.
type Pipeline struct {
	docRepository      storage.DocumentRepository
	index              *index.Index
	embedder           ai.Embedder
	executor           *resilience.Executor
	clusterer          *cluster.Clusterer
	clusteringRepo     storage.ClusteringRepository
	embedPool          *ants.Pool
	reclusterPool      *ants.Pool
	onChange           func()
	autoReclusterK     int
	autoReclusterAfter int
	logger             *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for chunked batch embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.embedPool != nil {
			p.embedPool.Release()
		}

		embedPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embedPool = embedPool
		return nil
	}
}

// WithClustering wires topic reclustering into the pipeline. The clusterer
// refits over the index and the repository persists each new snapshot.
func WithClustering(clusterer *cluster.Clusterer, repo storage.ClusteringRepository) Option {
	return func(p *Pipeline) error {
		p.clusterer = clusterer
		p.clusteringRepo = repo
		return nil
	}
}

// WithAutoRecluster triggers an async k-cluster refit after any ingest that
// grows the corpus to at least minDocs documents. Disabled by default.
func WithAutoRecluster(k, minDocs int) Option {
	return func(p *Pipeline) error {
		p.autoReclusterK = k
		p.autoReclusterAfter = minDocs
		return nil
	}
}

// WithExecutor sets the resilience executor guarding embedding calls.
// Default is an executor with production defaults.
func WithExecutor(executor *resilience.Executor) Option {
	return func(p *Pipeline) error {
		if executor != nil {
			p.executor = executor
		}
		return nil
	}
}

// WithOnChange registers a callback invoked after every mutation of the
// corpus or the topic model, used to invalidate result caches.
func WithOnChange(fn func()) Option {
	return func(p *Pipeline) error {
		p.onChange = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	docRepository storage.DocumentRepository,
	ix *index.Index,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if docRepository == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if ix == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	embedPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Refits are serialized: one at a time, later requests queue.
	reclusterPool, err := ants.NewPool(1)
	if err != nil {
		embedPool.Release()
		return nil, err
	}

	p := &Pipeline{
		docRepository: docRepository,
		index:         ix,
		embedder:      embedder,
		executor:      resilience.NewExecutor(resilience.DefaultConfig()),
		embedPool:     embedPool,
		reclusterPool: reclusterPool,
		logger:        slog.Default().With("component", "ingest"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Ingest embeds, persists, and indexes the documents. Ingestion is
// idempotent by document id: re-ingesting an id replaces its text, metadata,
// and vector. New documents enter the index without a topic until the next
// refit. Returns the documents with vectors and timestamps populated.
func (p *Pipeline) Ingest(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
		doc.Length = len(strings.Fields(doc.Text))
		doc.TopicId = core.TopicNone
	}

	vectors, err := p.embedAll(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	for i, doc := range docs {
		doc.Vector = vectors[i]
	}

	added, err := p.docRepository.PutDocuments(ctx, docs...)
	if err != nil {
		return nil, err
	}

	for _, doc := range added {
		if err := p.index.Insert(doc); err != nil {
			return nil, err
		}
	}

	p.logger.Info("ingested documents", "count", len(added), "indexed", p.index.Len())
	p.notifyChange()
	p.maybeRecluster()

	return added, nil
}

// Delete removes documents from storage and the index.
func (p *Pipeline) Delete(ctx context.Context, ids ...string) error {
	if err := p.docRepository.DeleteDocuments(ctx, ids...); err != nil {
		return err
	}
	for _, id := range ids {
		p.index.Remove(id)
	}
	p.notifyChange()
	return nil
}

// Recluster refits the topic model over the whole index and persists the new
// snapshot. Runs synchronously; async refits go through the worker pool.
func (p *Pipeline) Recluster(ctx context.Context, k int) (*core.Clustering, error) {
	if p.clusterer == nil {
		return nil, ErrClusteringNotConfigured
	}

	clustering, err := p.clusterer.Refit(p.index, k)
	if err != nil {
		return nil, err
	}

	// The relabeled documents must survive a restart, not just the snapshot.
	if _, err := p.docRepository.PutDocuments(ctx, p.index.Documents()...); err != nil {
		return nil, err
	}

	if p.clusteringRepo != nil {
		if err := p.clusteringRepo.SaveClustering(ctx, clustering); err != nil {
			return nil, err
		}
	}

	p.notifyChange()
	return clustering, nil
}

// embedAll embeds document texts in chunks across the worker pool, keeping
// input order. A single chunk is embedded inline.
func (p *Pipeline) embedAll(ctx context.Context, docs []*core.Document) ([][]float32, error) {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	if len(texts) <= embedChunkSize {
		return p.embedChunk(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	errs := make([]error, 0)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for start := 0; start < len(texts); start += embedChunkSize {
		end := start + embedChunkSize
		if end > len(texts) {
			end = len(texts)
		}
		chunkStart, chunk := start, texts[start:end]

		wg.Add(1)
		submitErr := p.embedPool.Submit(func() {
			defer wg.Done()
			embeddings, err := p.embedChunk(ctx, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			copy(vectors[chunkStart:], embeddings)
		})
		if submitErr != nil {
			wg.Done()
			return nil, submitErr
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, errs[0]
	}
	return vectors, nil
}

// embedChunk embeds one batch through the resilience executor. Cancellation
// surfaces as the context error; an exhausted retry budget surfaces as
// core.ErrServiceUnavailable.
func (p *Pipeline) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32
	err := p.executor.Execute(ctx, embedOperation, func(ctx context.Context) error {
		var embedErr error
		embeddings, embedErr = p.embedder.EmbedTexts(ctx, texts)
		return embedErr
	}, resilience.TransientClassifier)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
	}
	return embeddings, nil
}

// maybeRecluster submits an async refit when auto reclustering is enabled
// and the corpus is large enough.
func (p *Pipeline) maybeRecluster() {
	if p.clusterer == nil || p.autoReclusterK <= 0 || p.index.Len() < p.autoReclusterAfter {
		return
	}

	err := p.reclusterPool.Submit(func() {
		if _, err := p.Recluster(context.Background(), p.autoReclusterK); err != nil {
			p.logger.Error("error reclustering after ingest", "err", err)
		}
	})
	if err != nil {
		p.logger.Error("error submitting recluster job", "err", err)
	}
}

func (p *Pipeline) notifyChange() {
	if p.onChange != nil {
		p.onChange()
	}
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embedPool != nil {
		p.embedPool.Release()
	}
	if p.reclusterPool != nil {
		p.reclusterPool.Release()
	}
}
