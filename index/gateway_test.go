package index_test

import (
	"context"
	"errors"
	"testing"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/index"
	"github.com/synoet/spellbook/index/embedder/mock"
)

type recordingEmbedder struct {
	dims  int
	texts []string
	err   error
}

func (e *recordingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.texts = append(e.texts, text)
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, e.dims), nil
}

func (e *recordingEmbedder) Dimensions() int { return e.dims }

func TestGateway_EmbedEntryUsesCommandAndDescription(t *testing.T) {
	emb := &recordingEmbedder{dims: 4}
	g, err := index.NewGateway(emb)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	_, err = g.EmbedEntry(context.Background(), core.Entry{Invocation: "ls -la", Description: "list files"})
	if err != nil {
		t.Fatal(err)
	}
	if len(emb.texts) != 1 || emb.texts[0] != "ls -la : list files" {
		t.Errorf("unexpected embedded text %q", emb.texts)
	}
}

func TestGateway_FailuresAreEmbeddingUnavailable(t *testing.T) {
	tests := []struct {
		name string
		emb  index.Embedder
	}{
		{"provider error", &recordingEmbedder{dims: 4, err: errors.New("503 from provider")}},
		{"wrong dimensions", &wrongDims{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := index.NewGateway(tt.emb)
			if err != nil {
				t.Fatal(err)
			}
			_, err = g.EmbedEntry(context.Background(), core.Entry{Invocation: "a", Description: "b"})
			if !core.IsCode(err, core.EmbeddingUnavailable) {
				t.Errorf("entry: expected EMBEDDING_UNAVAILABLE, got %v", err)
			}
			_, err = g.EmbedQuery(context.Background(), "a")
			if !core.IsCode(err, core.EmbeddingUnavailable) {
				t.Errorf("query: expected EMBEDDING_UNAVAILABLE, got %v", err)
			}
		})
	}
}

type wrongDims struct{}

func (wrongDims) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (wrongDims) Dimensions() int                                  { return 3 }

func TestGateway_QueryCacheReturnsSameVector(t *testing.T) {
	g, err := index.NewGateway(mock.New(32), index.WithQueryCache(1<<20))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	ctx := context.Background()
	first, err := g.EmbedQuery(ctx, "list files")
	if err != nil {
		t.Fatal(err)
	}
	second, err := g.EmbedQuery(ctx, "list files")
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("query vectors differ at %d", i)
		}
	}
	if g.Dimensions() != 32 {
		t.Errorf("expected 32 dimensions, got %d", g.Dimensions())
	}
}

func TestGateway_EmbedQueryTrimsInput(t *testing.T) {
	emb := &recordingEmbedder{dims: 4}
	g, err := index.NewGateway(emb, index.WithQueryCache(1<<20))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	if _, err := g.EmbedQuery(context.Background(), "  list files \n"); err != nil {
		t.Fatal(err)
	}
	if len(emb.texts) != 1 || emb.texts[0] != "list files" {
		t.Errorf("expected the trimmed query to be embedded, got %q", emb.texts)
	}
}
