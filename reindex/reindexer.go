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


package reindex

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/scholarquery/ai"
	"github.com/poiesic/scholarquery/core"
	"github.com/poiesic/scholarquery/index"
	"github.com/poiesic/scholarquery/resilience"
	"github.com/poiesic/scholarquery/storage"
)

// Config holds configuration for the reindexing operation.
type Config struct {
	// BatchSize is the number of documents to re-embed in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// Resilience tunes retry behavior for embedding calls
	Resilience resilience.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		Resilience:     resilience.DefaultConfig(),
	}
}

// Reindexer re-embeds every stored document with the current embedding model
// and rewrites storage and the vector index. Topic assignments are cleared:
// centroids fitted under the old model are meaningless in the new vector
// space, so a refit must follow.
type Reindexer struct {
	repo     storage.DocumentRepository
	embedder ai.Embedder
	index    *index.Index
	executor *resilience.Executor
	config   *Config
	progress io.Writer
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(repo storage.DocumentRepository, embedder ai.Embedder, ix *index.Index, config *Config, progress io.Writer) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}

	return &Reindexer{
		repo:     repo,
		embedder: embedder,
		index:    ix,
		executor: resilience.NewExecutor(config.Resilience),
		config:   config,
		progress: progress,
	}
}

// Run executes the reindexing operation over all stored documents.
// Progress is reported to the configured writer. Returns the number of
// documents processed.
func (r *Reindexer) Run(ctx context.Context) (int, error) {
	total, err := r.repo.CountDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No documents found in storage (0 documents)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	batch := make([]*core.Document, 0, r.config.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.processBatch(ctx, batch); err != nil {
			return err
		}
		processed += len(batch)
		tracker.Update(processed)
		batch = batch[:0]
		return nil
	}

	err = r.repo.AllDocuments(ctx, func(doc *core.Document) error {
		batch = append(batch, doc)
		if len(batch) >= r.config.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return processed, err
	}
	if err := flush(); err != nil {
		return processed, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d documents in %v (%.1f documents/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())

	return processed, nil
}

// processBatch re-embeds one batch and rewrites storage and the index.
func (r *Reindexer) processBatch(ctx context.Context, docs []*core.Document) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	var embeddings [][]float32
	err := r.executor.Execute(ctx, "reindex-embed", func(ctx context.Context) error {
		var embedErr error
		embeddings, embedErr = r.embedder.EmbedTexts(ctx, texts)
		return embedErr
	}, resilience.TransientClassifier)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(docs) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(docs), len(embeddings))
	}

	for i, doc := range docs {
		doc.Vector = NormalizeVector(embeddings[i])
		doc.TopicId = core.TopicNone
		doc.TopicVersion = 0
	}

	if _, err := r.repo.PutDocuments(ctx, docs...); err != nil {
		return fmt.Errorf("failed to update documents: %w", err)
	}

	if r.index != nil {
		for _, doc := range docs {
			if err := r.index.Insert(doc); err != nil {
				return err
			}
		}
	}

	return nil
}
