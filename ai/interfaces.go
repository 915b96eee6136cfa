package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must return unit-norm vectors of the configured dimension
// and be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces grounded answers from a prompt built out of retrieved
// passages. Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate invokes the generation model with the given prompt and returns
	// the generated text together with token usage.
	Generate(ctx context.Context, prompt string, params GenerationParams) (*Generation, error)
}

// Scorer computes a secondary relevance score for candidate passages against
// a query, as a cross-encoder style signal for reranking.
type Scorer interface {
	// ScorePassages returns one score per passage, in input order.
	// Scores are in [0, 1]; higher means more relevant to the query.
	ScorePassages(ctx context.Context, query string, passages []string) ([]float32, error)
}

// AIProvider aggregates AI services for convenient initialization and
// lifecycle management. A provider creates and manages Embedder and Generator
// instances, ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the answer generation service.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
