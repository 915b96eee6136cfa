package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier used for cache keys and internal indexes.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// TopicNone marks a document whose topic has not been assigned yet.
const TopicNone int32 = -1

// Document represents a single corpus passage.
// Text and metadata are immutable after ingestion; the embedding vector and
// topic assignment may be recomputed on reindex or recluster.
type Document struct {
	Id           string
	Text         string
	Metadata     map[string]string // source, author, language, page, volume
	Length       int               // text length in words, set at ingestion
	Vector       []float32         // unit-norm embedding (populated by the ingestion pipeline)
	TopicId      int32             // TopicNone until a clustering pass assigns one
	TopicVersion uint64            // clustering version the topic belongs to
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// Cluster is a single topic cluster within a Clustering.
type Cluster struct {
	Id       int32
	Label    string
	Centroid []float32
}

// Clustering is an immutable, versioned set of topic clusters.
// A refit produces a whole new Clustering; readers never observe a
// half-updated cluster set.
type Clustering struct {
	Version  uint64
	Clusters []Cluster
	FittedAt time.Time
}

// Cluster returns the cluster with the given id, or nil.
func (c *Clustering) Cluster(id int32) *Cluster {
	for i := range c.Clusters {
		if c.Clusters[i].Id == id {
			return &c.Clusters[i]
		}
	}
	return nil
}

// Query describes a single retrieval request. Transient, never persisted.
type Query struct {
	Text        string
	TopK        int
	TopicFilter []int32 // empty means unrestricted
	Rerank      bool
	UseRAG      bool
}

// Hit is one retrieved document with its relevance scores.
type Hit struct {
	Document    *Document
	Score       float32 // cosine similarity in [-1, 1]
	RerankScore float32 // secondary relevance score, valid only when Reranked
	Reranked    bool
}

// RetrievalResult is an ordered candidate set, strictly descending by score,
// with no duplicate document ids.
type RetrievalResult struct {
	Hits []*Hit
	// Degraded is set when a secondary scorer failed for some candidates and
	// their original similarity scores were used instead.
	Degraded bool
}

// Citation references one retrieved passage from a generated answer.
type Citation struct {
	HitIndex int // index into the RetrievalResult the answer was grounded on
	DocId    string
}

// RAGResponse is a generated answer grounded in retrieved passages.
type RAGResponse struct {
	Answer    string
	Citations []Citation
	// Truncated records that some retrieved passages did not fit the
	// generation context budget and were dropped.
	Truncated bool
	// Unavailable is set when the generation service failed after retries.
	// Answer is empty in that case; the retrieval results still stand.
	Unavailable bool
}
