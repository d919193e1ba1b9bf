package gitrev_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/synoet/spellbook/gitrev"
)

func TestWorkspace_IsolatedDirsAreDistinct(t *testing.T) {
	ws, err := gitrev.NewWorkspace(t.TempDir(), true)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	a, releaseA, err := ws.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, releaseB, err := ws.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("isolated workspaces share %s", a)
	}

	releaseA()
	releaseB()
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed on release", a)
	}
}

func TestWorkspace_SharedIsExclusive(t *testing.T) {
	ws, err := gitrev.NewWorkspace(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}

	dir, release, err := ws.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stale"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := ws.Acquire(ctx); err == nil {
		t.Fatal("expected second Acquire to wait and time out")
	}

	release()

	dir2, release2, err := ws.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release2()
	if dir2 != dir {
		t.Errorf("shared workspace moved from %s to %s", dir, dir2)
	}
	if _, err := os.Stat(filepath.Join(dir2, "stale")); !os.IsNotExist(err) {
		t.Error("expected the previous checkout to be discarded")
	}
}
