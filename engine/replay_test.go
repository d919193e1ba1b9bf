package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/engine"
	"github.com/synoet/spellbook/ledger"
	"github.com/synoet/spellbook/reconcile"
)

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestReplay_DrainsQueuedFailures(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	h := newHarness(t, engine.WithLedger(l))

	h.embedder.fail[gitStat.Invocation] = true
	h.store.failNext(gitLog.ID(), 2)
	_, err := h.engine.Apply(ctx, &reconcile.ChangeSet{
		Remove: []core.Entry{gitLog},
		Add:    []core.Entry{gitStat, lsOld},
	})
	if !core.IsCode(err, core.IndexOperationFailed) {
		t.Fatalf("expected INDEX_OPERATION_FAILED, got %v", err)
	}
	if n, _ := l.CountPending(ctx); n != 2 {
		t.Fatalf("expected 2 queued failures, got %d", n)
	}

	// Still failing: attempts go up, nothing is resolved.
	h.store.failNext(gitLog.ID(), 2)
	if _, err := h.engine.Replay(ctx, 10); err == nil {
		t.Fatal("expected replay to report the index failure")
	}
	pending, _ := l.PendingFailures(ctx, 10)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending failures, got %d", len(pending))
	}
	for _, f := range pending {
		if f.Attempts != 2 {
			t.Errorf("expected attempts bumped to 2 for %s, got %d", f.Op, f.Attempts)
		}
	}

	// Provider and store recovered.
	delete(h.embedder.fail, gitStat.Invocation)
	report, err := h.engine.Replay(ctx, 10)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Upserted != 1 || report.Deleted != 1 {
		t.Errorf("unexpected replay report %+v", report)
	}
	if n, _ := l.CountPending(ctx); n != 0 {
		t.Errorf("expected queue drained, got %d pending", n)
	}
}

func TestReplay_LaterSyncResolvesQueuedFailure(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	h := newHarness(t, engine.WithLedger(l))

	h.embedder.fail[lsOld.Invocation] = true
	if _, err := h.engine.Apply(ctx, &reconcile.ChangeSet{Add: []core.Entry{lsOld}}); err != nil {
		t.Fatal(err)
	}
	delete(h.embedder.fail, lsOld.Invocation)

	// A push that writes the same identity supersedes the queued upsert.
	if _, err := h.engine.Apply(ctx, &reconcile.ChangeSet{Add: []core.Entry{lsNew}}); err != nil {
		t.Fatal(err)
	}
	if n, _ := l.CountPending(ctx); n != 0 {
		t.Errorf("expected no pending failures, got %d", n)
	}
}

func TestReplay_RecordsSyncs(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	h := newHarness(t, engine.WithLedger(l))
	h.extractor.diff = &core.RawDiff{
		Added: []core.ManifestFile{{Path: "registry-a.json", Content: manifestJSON("files", lsOld)}},
	}

	if _, err := h.engine.Sync(ctx, testRev, core.Changes{Added: []string{"registry-a.json"}}); err != nil {
		t.Fatal(err)
	}
	last, err := l.LastSync(ctx, testRev.RepoURL)
	if err != nil {
		t.Fatal(err)
	}
	if last.Status != ledger.StatusSucceeded || last.Upserted != 1 || last.After != testRev.After {
		t.Errorf("unexpected sync row %+v", last)
	}
}

func TestReplay_NoLedger(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Replay(context.Background(), 10); !errors.Is(err, engine.ErrNoLedger) {
		t.Errorf("expected ErrNoLedger, got %v", err)
	}
}

func TestReplay_FailedReplaceKeepsOldRecord(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	h := newHarness(t, engine.WithLedger(l))

	if _, err := h.engine.Apply(ctx, &reconcile.ChangeSet{Add: []core.Entry{lsOld}}); err != nil {
		t.Fatal(err)
	}

	// Both halves of the replace fail.
	h.store.failNext(lsOld.ID(), 2)
	h.embedder.fail[lsNew.Invocation] = true
	if _, err := h.engine.Apply(ctx, &reconcile.ChangeSet{
		Remove: []core.Entry{lsOld},
		Add:    []core.Entry{lsNew},
	}); err == nil {
		t.Fatal("expected the failed delete to be reported")
	}
	pending, _ := l.PendingFailures(ctx, 10)
	if len(pending) != 1 || pending[0].Op != ledger.OpUpsert {
		t.Fatalf("expected only the upsert queued, got %+v", pending)
	}

	// Provider still down: the old record must survive the replay.
	report, err := h.engine.Replay(ctx, 10)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Deleted != 0 || len(report.EmbeddingFailures) != 1 {
		t.Errorf("unexpected replay report %+v", report)
	}
	if h.store.size() != 1 {
		t.Fatalf("expected the old record to remain, got %d records", h.store.size())
	}
	pending, _ = l.PendingFailures(ctx, 10)
	if len(pending) != 1 || pending[0].Attempts != 2 {
		t.Fatalf("expected the upsert still pending with attempts 2, got %+v", pending)
	}

	delete(h.embedder.fail, lsNew.Invocation)
	if _, err := h.engine.Replay(ctx, 10); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n, _ := l.CountPending(ctx); n != 0 {
		t.Errorf("expected queue drained, got %d pending", n)
	}
	results, err := h.engine.Search(ctx, "list files", 5)
	if err != nil {
		t.Fatal(err)
	}
	if h.store.size() != 1 || len(results) != 1 || !results[0].Entry.Equal(lsNew) {
		t.Errorf("expected one record holding the new description, got %+v", results)
	}
}

func TestReplay_NewerDeleteWins(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	h := newHarness(t, engine.WithLedger(l))

	h.embedder.fail[lsOld.Invocation] = true
	if _, err := h.engine.Apply(ctx, &reconcile.ChangeSet{Add: []core.Entry{lsOld}}); err != nil {
		t.Fatal(err)
	}
	delete(h.embedder.fail, lsOld.Invocation)

	// The entry is removed upstream before the upsert was ever replayed.
	h.store.failNext(lsOld.ID(), 2)
	if _, err := h.engine.Apply(ctx, &reconcile.ChangeSet{Remove: []core.Entry{lsOld}}); err == nil {
		t.Fatal("expected the failed delete to be reported")
	}

	report, err := h.engine.Replay(ctx, 10)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Upserted != 0 || report.Deleted != 1 {
		t.Errorf("expected only the delete replayed, got %+v", report)
	}
	if h.store.count("upsert") != 0 || h.store.size() != 0 {
		t.Errorf("expected no record for the removed entry, got %d records", h.store.size())
	}
	if n, _ := l.CountPending(ctx); n != 0 {
		t.Errorf("expected queue drained, got %d pending", n)
	}
}
