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


package cluster

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/scholarquery/core"
)

var (
	// ErrInvalidK is returned when a fit is requested with k <= 0.
	ErrInvalidK = errors.New("cluster count must be greater than 0")

	// ErrEmptyCorpus is returned when a fit is requested over no vectors.
	ErrEmptyCorpus = errors.New("cannot fit clusters over an empty corpus")

	// ErrNoClustering is returned by Assign before any fit has completed.
	ErrNoClustering = errors.New("no clustering fitted yet")
)

// Corpus is the slice of the vector index the clusterer works against.
type Corpus interface {
	// Documents returns a snapshot of all indexed documents, ordered by id.
	Documents() []*core.Document

	// ApplyTopics relabels all documents for a new clustering version in a
	// single exclusive pass.
	ApplyTopics(version uint64, assignments map[string]int32)
}

// Clusterer owns the topic cluster definitions and is the sole writer of
// topic labels. Each refit produces a new immutable Clustering snapshot that
// replaces the previous one atomically.
type Clusterer struct {
	mu      sync.RWMutex
	current *core.Clustering

	seed    int64
	maxIter int
	logger  *slog.Logger
}

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithSeed sets the centroid initialization seed.
// Repeated fits on identical input and seed produce identical clusters.
// Default is 1.
func WithSeed(seed int64) Option {
	return func(c *Clusterer) {
		c.seed = seed
	}
}

// WithMaxIterations caps the centroid refinement loop.
// Default is 50.
func WithMaxIterations(n int) Option {
	return func(c *Clusterer) {
		if n > 0 {
			c.maxIter = n
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Clusterer) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// NewClusterer creates a clusterer with no fitted clustering.
func NewClusterer(opts ...Option) *Clusterer {
	c := &Clusterer{
		seed:    1,
		maxIter: 50,
		logger:  slog.Default().With("component", "clusterer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the active clustering snapshot, or nil before the first fit.
func (c *Clusterer) Current() *core.Clustering {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Assign returns the id of the nearest centroid to the vector, by the same
// cosine metric the vector index uses.
func (c *Clusterer) Assign(vector []float32) (int32, error) {
	c.mu.RLock()
	clustering := c.current
	c.mu.RUnlock()

	if clustering == nil || len(clustering.Clusters) == 0 {
		return core.TopicNone, ErrNoClustering
	}

	centroids := make([][]float32, len(clustering.Clusters))
	for i := range clustering.Clusters {
		centroids[i] = clustering.Clusters[i].Centroid
	}
	nearest := nearestCentroid(vector, centroids)
	return clustering.Clusters[nearest].Id, nil
}

// Refit computes a new k-cluster topic model over the corpus and relabels
// every document in one atomic pass. The new Clustering supersedes the old
// snapshot; its version is the previous version plus one.
func (c *Clusterer) Refit(corpus Corpus, k int) (*core.Clustering, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	docs := corpus.Documents()
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	ids := make([]string, len(docs))
	vectors := make([][]float32, len(docs))
	texts := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.Id
		vectors[i] = doc.Vector
		texts[i] = doc.Text
	}

	started := time.Now()
	centroids, assignments := kmeans(vectors, k, c.seed, c.maxIter)

	c.mu.Lock()
	version := uint64(1)
	if c.current != nil {
		version = c.current.Version + 1
	}

	clustering := &core.Clustering{
		Version:  version,
		Clusters: make([]core.Cluster, len(centroids)),
		FittedAt: time.Now().UTC(),
	}
	byDoc := make(map[string]int32, len(ids))
	members := make(map[int32][]string, len(centroids))
	for i, id := range ids {
		byDoc[id] = assignments[i]
		members[assignments[i]] = append(members[assignments[i]], texts[i])
	}
	for i, centroid := range centroids {
		id := int32(i)
		clustering.Clusters[i] = core.Cluster{
			Id:       id,
			Label:    labelFromTexts(id, members[id]),
			Centroid: centroid,
		}
	}

	c.current = clustering
	c.mu.Unlock()

	// Relabel documents under the index's own exclusive section.
	corpus.ApplyTopics(version, byDoc)

	c.logger.Info("refit complete",
		"version", version,
		"k", len(clustering.Clusters),
		"documents", len(ids),
		"took", time.Since(started))

	return clustering, nil
}

// Restore installs a previously persisted clustering snapshot, typically at
// startup. It does not relabel documents.
func (c *Clusterer) Restore(clustering *core.Clustering) {
	if clustering == nil {
		return
	}
	c.mu.Lock()
	c.current = clustering
	c.mu.Unlock()
}
