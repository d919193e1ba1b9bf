package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/synoet/spellbook/core"
)

// Gateway sits between the engine and an Embedder. Entries are embedded on
// every call; query vectors are cached because type-ahead search repeats them.
type Gateway struct {
	embedder Embedder
	cache    *ristretto.Cache
	logger   *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway) error

// WithQueryCache bounds the query vector cache to roughly maxBytes.
// Zero or a negative value disables caching.
func WithQueryCache(maxBytes int64) GatewayOption {
	return func(g *Gateway) error {
		if maxBytes <= 0 {
			return nil
		}
		cache, err := ristretto.NewCache(&ristretto.Config{
			// ten counters per expected item; a 384-dim vector costs ~1.5KiB
			NumCounters: max(maxBytes/150, 1000),
			MaxCost:     maxBytes,
			BufferItems: 64,
		})
		if err != nil {
			return fmt.Errorf("create query cache: %w", err)
		}
		g.cache = cache
		return nil
	}
}

// WithGatewayLogger sets the logger.
func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) error {
		g.logger = logger.With("component", "embedding")
		return nil
	}
}

// NewGateway wraps embedder.
func NewGateway(embedder Embedder, opts ...GatewayOption) (*Gateway, error) {
	g := &Gateway{
		embedder: embedder,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Dimensions returns the vector size of the underlying embedder.
func (g *Gateway) Dimensions() int {
	return g.embedder.Dimensions()
}

// EmbedEntry embeds the entry's invocation and description together.
func (g *Gateway) EmbedEntry(ctx context.Context, entry core.Entry) ([]float32, error) {
	vec, err := g.embed(ctx, entry.EmbeddingText())
	if err != nil {
		return nil, core.NewError(core.EmbeddingUnavailable,
			fmt.Sprintf("embed entry %q", entry.Invocation), err)
	}
	return vec, nil
}

// EmbedQuery embeds free-text search input. Surrounding whitespace is
// trimmed, so queries differing only in padding share one cached vector.
func (g *Gateway) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	text := strings.TrimSpace(query)
	if g.cache != nil {
		if v, ok := g.cache.Get(text); ok {
			return v.([]float32), nil
		}
	}

	vec, err := g.embed(ctx, text)
	if err != nil {
		return nil, core.NewError(core.EmbeddingUnavailable, "embed query", err)
	}

	if g.cache != nil {
		g.cache.Set(text, vec, int64(len(vec)*4+len(text)))
	}
	return vec, nil
}

func (g *Gateway) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.embedder.Embed(ctx, text)
	if err != nil {
		g.logger.Warn("embedding request failed", "error", err)
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("provider returned an empty vector")
	}
	if dims := g.embedder.Dimensions(); dims > 0 && len(vec) != dims {
		return nil, fmt.Errorf("provider returned %d dimensions, expected %d", len(vec), dims)
	}
	return vec, nil
}

// Close releases the query cache and, when it implements io.Closer, the embedder.
func (g *Gateway) Close() error {
	if g.cache != nil {
		g.cache.Close()
	}
	if c, ok := g.embedder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
