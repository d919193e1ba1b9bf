//go:build !onnx

package onnx

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNotBuilt is returned when the binary was built without the onnx tag.
var ErrNotBuilt = errors.New("onnx embedder not available: rebuild with -tags onnx")

// ONNXEmbedder is unavailable in this build.
type ONNXEmbedder struct{}

// New always fails in builds without the onnx tag.
func New(cfg Config, logger *slog.Logger) (*ONNXEmbedder, error) {
	return nil, ErrNotBuilt
}

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNotBuilt
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
