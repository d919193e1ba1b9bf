package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	chromem "github.com/philippgille/chromem-go"

	"github.com/synoet/spellbook/index"
)

// DefaultCollection matches the collection name used by earlier deployments.
const DefaultCollection = "commands-v0"

// ChromemStore wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database.
type ChromemStore struct {
	db     *chromem.DB
	col    *chromem.Collection
	logger *slog.Logger
}

// Options configures a ChromemStore.
type Options struct {
	// Collection defaults to DefaultCollection.
	Collection string
	// Path persists the database to this directory. Empty keeps it in memory.
	Path string
	// Compress gzips persisted documents.
	Compress bool
	Logger   *slog.Logger
}

// New creates a new chromem-based store.
func New(opts Options) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if opts.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	name := opts.Collection
	if name == "" {
		name = DefaultCollection
	}
	col, err := db.GetOrCreateCollection(
		name,
		nil, // No collection metadata
		nil, // No embedding func (vectors are always provided)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &ChromemStore{
		db:     db,
		col:    col,
		logger: logger.With("component", "chromem", "collection", name),
	}, nil
}

// Upsert saves a record, replacing any document with the same ID.
func (s *ChromemStore) Upsert(ctx context.Context, rec index.Record) error {
	content, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   string(content),
		Embedding: rec.Vector,
		Metadata:  metadataFor(rec.Payload),
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.logger.Debug("upserted document", "id", rec.ID)
	return nil
}

// Delete removes a record. Absent IDs are ignored.
func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	if _, err := s.col.GetByID(ctx, id); err != nil {
		s.logger.Debug("delete of absent document", "id", id)
		return nil
	}
	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.logger.Debug("deleted document", "id", id)
	return nil
}

// Search retrieves records by vector similarity.
func (s *ChromemStore) Search(ctx context.Context, vector []float32, k int) ([]index.Hit, error) {
	// chromem-go requires nResults <= collection size
	if n := s.col.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]index.Hit, 0, len(results))
	for _, r := range results {
		hit := index.Hit{ID: r.ID, Score: r.Similarity}
		// A nil payload surfaces as a decode failure upstream.
		if err := json.Unmarshal([]byte(r.Content), &hit.Payload); err != nil {
			s.logger.Warn("stored document is not JSON", "id", r.ID, "error", err)
			hit.Payload = nil
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count() int {
	return s.col.Count()
}

// Close releases resources.
func (s *ChromemStore) Close() error {
	// Persistent databases write through on every change, nothing to flush.
	return nil
}

// metadataFor keeps the string fields of a payload filterable.
func metadataFor(payload map[string]any) map[string]string {
	md := make(map[string]string, 2)
	for _, k := range []string{"command", "description"} {
		if v, ok := payload[k].(string); ok {
			md[k] = v
		}
	}
	return md
}
