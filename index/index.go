package index

import (
	"context"
	"errors"
)

// Record is one stored entry: identity, vector and the serialized entry.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is a search result, best first.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Store is the vector storage backend interface.
// Implementations: chromem (embedded), qdrant (remote).
type Store interface {
	// Upsert inserts the record or overwrites the one with the same ID.
	Upsert(ctx context.Context, rec Record) error

	// Delete removes the record with the given ID. Deleting an absent ID is not an error.
	Delete(ctx context.Context, id string) error

	// Search returns at most k records ordered by similarity (highest first).
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), openai (remote API), onnx (local model).
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// ErrPermanent marks store failures that retrying cannot fix, such as a
// vector of the wrong dimension. Backends wrap it with fmt.Errorf("%w").
var ErrPermanent = errors.New("permanent store failure")
