package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions matches all-MiniLM-L6-v2 so the mock can stand in for the ONNX embedder.
const DefaultDimensions = 384

// MockEmbedder is a deterministic embedder for tests and offline development.
// Each token is hashed into one of the dimensions (feature hashing), so texts
// sharing words end up close to each other.
type MockEmbedder struct {
	dimensions int
}

// New creates a new mock embedder. dims <= 0 selects DefaultDimensions.
func New(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &MockEmbedder{dimensions: dims}
}

// Embed creates a deterministic embedding from text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding := make([]float32, m.dimensions)
	tokens := tokenize(text)
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		embedding[sum%uint64(m.dimensions)] += sign
	}

	// Text without tokens still needs a non-zero vector for cosine similarity.
	if len(tokens) == 0 {
		h := fnv.New64a()
		h.Write([]byte(text))
		seed := h.Sum64()
		for i := range embedding {
			// Simple LCG (Linear Congruential Generator)
			seed = seed*6364136223846793005 + 1442695040888963407
			embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
		}
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
