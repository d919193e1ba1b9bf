// Package onnx embeds text locally with a sentence-transformer model run by
// ONNX Runtime. The runtime is only linked when building with -tags onnx.
package onnx

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// SharedLibraryPath locates libonnxruntime. Empty uses the platform default search.
	SharedLibraryPath string

	// Dimensions is the embedding vector size (default: 384 for all-MiniLM-L6-v2).
	Dimensions int

	// MaxSequenceLength bounds the token window (default: 128).
	MaxSequenceLength int
}

func (c *Config) applyDefaults() {
	if c.Dimensions == 0 {
		c.Dimensions = 384
	}
	if c.MaxSequenceLength == 0 {
		c.MaxSequenceLength = 128
	}
}
