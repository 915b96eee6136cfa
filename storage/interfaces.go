package storage

import (
	"context"

	"github.com/poiesic/scholarquery/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository persists documents and their embeddings. The vector
// index is rebuilt from this repository at startup; it is the durable side
// of the in-memory index.
type DocumentRepository interface {
	Repository

	// PutDocuments adds or replaces documents, idempotent by document id.
	// Sets InsertedAt on first write and UpdatedAt on every write.
	// Returns the documents with timestamps populated.
	PutDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// GetDocument retrieves a single document by id.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// GetDocuments retrieves multiple documents by their ids.
	// Returns only the documents that exist (no error for missing ids).
	GetDocuments(ctx context.Context, ids ...string) ([]*core.Document, error)

	// DeleteDocuments removes documents by their ids.
	// Returns ErrNotFound if any document doesn't exist.
	DeleteDocuments(ctx context.Context, ids ...string) error

	// AllDocuments streams every stored document to fn in id order.
	// Iteration stops at the first error from fn.
	AllDocuments(ctx context.Context, fn func(doc *core.Document) error) error

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int, error)
}

// ClusteringRepository persists versioned topic clustering snapshots.
type ClusteringRepository interface {
	Repository

	// SaveClustering stores a clustering snapshot and marks it latest.
	SaveClustering(ctx context.Context, clustering *core.Clustering) error

	// GetClustering retrieves a snapshot by version.
	// Returns ErrNotFound if the version doesn't exist.
	GetClustering(ctx context.Context, version uint64) (*core.Clustering, error)

	// LatestClustering retrieves the most recently saved snapshot.
	// Returns ErrNoClustering if no snapshot has been saved.
	LatestClustering(ctx context.Context) (*core.Clustering, error)
}
