package ingest

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrNoDocuments is returned when an ingest call carries no documents.
	ErrNoDocuments = errors.New("no documents to ingest")

	// ErrClusteringNotConfigured is returned when a recluster is requested on
	// a pipeline built without clustering.
	ErrClusteringNotConfigured = errors.New("clustering not configured")
)
