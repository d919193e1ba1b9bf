package chromem_test

import (
	"context"
	"testing"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/index"
	"github.com/synoet/spellbook/index/embedder/mock"
	"github.com/synoet/spellbook/index/store/chromem"
)

func record(t *testing.T, e core.Entry) index.Record {
	t.Helper()
	vec, err := mock.New(64).Embed(context.Background(), e.EmbeddingText())
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	return index.Record{ID: e.ID(), Vector: vec, Payload: e.Payload()}
}

func newStore(t *testing.T) *chromem.ChromemStore {
	t.Helper()
	store, err := chromem.New(chromem.Options{})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestChromemStore_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	old := core.Entry{Invocation: "ls -la", Description: "list files"}
	updated := core.Entry{Invocation: "ls -la", Description: "list all files, long format"}

	if err := store.Upsert(ctx, record(t, old)); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, record(t, updated)); err != nil {
		t.Fatal(err)
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 record, got %d", store.Count())
	}

	q, _ := mock.New(64).Embed(ctx, "list files")
	hits, err := store.Search(ctx, q, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	got, err := core.DecodePayload(hits[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(updated) {
		t.Errorf("expected %+v, got %+v", updated, got)
	}
}

func TestChromemStore_DeleteAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if err := store.Delete(ctx, core.Identity("never stored")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	e := core.Entry{Invocation: "pwd", Description: "print working directory"}
	if err := store.Upsert(ctx, record(t, e)); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, e.ID()); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, e.ID()); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("expected empty store, got %d", store.Count())
	}
}

func TestChromemStore_SearchClampsAndOrders(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	q, _ := mock.New(64).Embed(ctx, "x")
	hits, err := store.Search(ctx, q, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("empty store: hits=%v err=%v", hits, err)
	}

	entries := []core.Entry{
		{Invocation: "git status", Description: "show working tree status"},
		{Invocation: "git log", Description: "show commit history"},
		{Invocation: "docker ps", Description: "list running containers"},
	}
	for _, e := range entries {
		if err := store.Upsert(ctx, record(t, e)); err != nil {
			t.Fatal(err)
		}
	}

	q, _ = mock.New(64).Embed(ctx, "docker containers")
	hits, err = store.Search(ctx, q, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected k clamped to 3, got %d", len(hits))
	}
	if hits[0].ID != entries[2].ID() {
		t.Errorf("expected docker ps first, got %v", hits[0].Payload["command"])
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not ordered by score: %v", hits)
		}
	}
}

func TestChromemStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := chromem.New(chromem.Options{Path: dir, Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	e := core.Entry{Invocation: "make test", Description: "run the test suite"}
	if err := store.Upsert(ctx, record(t, e)); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := chromem.New(chromem.Options{Path: dir, Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Count() != 1 {
		t.Errorf("expected 1 persisted record, got %d", reopened.Count())
	}
}
