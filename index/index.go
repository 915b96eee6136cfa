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


package index

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/scholarquery/core"
)

// ErrInvalidDimension is returned when the index is created with a
// non-positive dimension.
var ErrInvalidDimension = errors.New("index dimension must be positive")

// Index is the canonical in-memory store of document embeddings.
// It supports exact nearest-neighbor search by cosine similarity over
// unit-norm vectors. Reads proceed concurrently; inserts, removals, and
// topic relabeling take an exclusive section so a search never observes a
// mix of pre- and post-update state.
type Index struct {
	mu   sync.RWMutex
	dim  int
	docs map[string]*core.Document
}

// New creates an empty index for vectors of the given dimension.
// The dimension is fixed for the life of the index; mixing dimensions
// (and therefore metrics) is disallowed.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	return &Index{
		dim:  dim,
		docs: make(map[string]*core.Document),
	}, nil
}

// Dim returns the fixed vector dimension.
func (ix *Index) Dim() int {
	return ix.dim
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Insert adds or replaces a document's embedding, idempotent by document id.
// The index keeps its own copy of the document so callers holding references
// from earlier searches are never mutated under them.
func (ix *Index) Insert(doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	if err := core.ValidateVector(doc.Vector, ix.dim); err != nil {
		return err
	}

	cp := *doc
	ix.mu.Lock()
	ix.docs[cp.Id] = &cp
	ix.mu.Unlock()
	return nil
}

// Remove deletes a document's vector. Returns false if the id was not indexed.
func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.docs[id]; !ok {
		return false
	}
	delete(ix.docs, id)
	return true
}

// Get returns the indexed document by id.
func (ix *Index) Get(id string) (*core.Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, ok := ix.docs[id]
	return doc, ok
}

// Search returns the k nearest documents to the query vector by cosine
// similarity, descending. Equal scores are broken lexicographically by
// document id, so results are deterministic. If filter is non-empty, only
// documents whose topic id is in the filter are considered; documents with
// no topic assigned never match a filter.
func (ix *Index) Search(vector []float32, k int, filter []int32) ([]*core.Hit, error) {
	if k <= 0 {
		return nil, core.ErrInvalidTopK
	}
	if err := core.ValidateVector(vector, ix.dim); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make([]*core.Hit, 0, len(ix.docs))
	for _, doc := range ix.docs {
		if len(filter) > 0 {
			if doc.TopicId == core.TopicNone || !slices.Contains(filter, doc.TopicId) {
				continue
			}
		}
		hits = append(hits, &core.Hit{
			Document: doc,
			Score:    dotProduct(vector, doc.Vector),
		})
	}

	slices.SortFunc(hits, func(a, b *core.Hit) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.Document.Id, b.Document.Id)
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Vectors returns a consistent snapshot of all indexed ids and vectors,
// for clustering fits. The two slices are parallel.
func (ix *Index) Vectors() ([]string, [][]float32) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := make([]string, 0, len(ix.docs))
	for id := range ix.docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	vectors := make([][]float32, len(ids))
	for i, id := range ids {
		vectors[i] = ix.docs[id].Vector
	}
	return ids, vectors
}

// Documents returns a snapshot of all indexed documents, ordered by id.
func (ix *Index) Documents() []*core.Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docs := make([]*core.Document, 0, len(ix.docs))
	for _, doc := range ix.docs {
		docs = append(docs, doc)
	}
	slices.SortFunc(docs, func(a, b *core.Document) int {
		return strings.Compare(a.Id, b.Id)
	})
	return docs
}

// ApplyTopics relabels all documents for a new clustering version in a single
// exclusive pass. Documents absent from the assignment keep no topic.
// Searches either see the previous labeling or the new one, never a mix.
func (ix *Index) ApplyTopics(version uint64, assignments map[string]int32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for id, doc := range ix.docs {
		cp := *doc
		if topic, ok := assignments[id]; ok {
			cp.TopicId = topic
		} else {
			cp.TopicId = core.TopicNone
		}
		cp.TopicVersion = version
		ix.docs[id] = &cp
	}
}

// dotProduct calculates the dot product of two vectors.
// For unit-norm vectors this equals their cosine similarity.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
