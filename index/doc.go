// Package index embeds registry entries and keeps them in a vector store.
//
// Architecture:
//   - Store: vector storage backend (chromem for embedded use, qdrant for a shared service)
//   - Embedder: text-to-vector conversion (mock for tests, OpenAI-compatible API, local ONNX model)
//   - Gateway: wraps an Embedder, caches query vectors and classifies failures
//
// Records are keyed by core.Identity of the entry's invocation, so an upsert for a
// changed description overwrites the previous record in place.
package index
