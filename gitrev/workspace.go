package gitrev

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Workspace hands out directories to clone into.
//
// Isolated workspaces create a fresh temporary directory per call, so
// concurrent reconciliations never share a checkout. Shared workspaces reuse
// <dir>/repo and serialize callers with a mutex and a lock file, which also
// covers separate processes on the same host.
type Workspace struct {
	dir     string
	isolate bool

	// sem serializes in-process callers; lock covers other processes.
	sem  chan struct{}
	lock *flock.Flock
}

// NewWorkspace prepares dir. An empty dir uses the system temp directory.
func NewWorkspace(dir string, isolate bool) (*Workspace, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "spellbook")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	w := &Workspace{dir: dir, isolate: isolate}
	if !isolate {
		w.sem = make(chan struct{}, 1)
		w.lock = flock.New(filepath.Join(dir, "repo.lock"))
	}
	return w, nil
}

// Isolated reports whether every Acquire gets its own directory.
func (w *Workspace) Isolated() bool {
	return w.isolate
}

// Acquire returns an empty directory and a release func that must be called
// when the caller is done with it.
func (w *Workspace) Acquire(ctx context.Context) (string, func(), error) {
	if w.isolate {
		dir, err := os.MkdirTemp(w.dir, "checkout-*")
		if err != nil {
			return "", nil, fmt.Errorf("create checkout dir: %w", err)
		}
		return dir, func() { os.RemoveAll(dir) }, nil
	}

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return "", nil, fmt.Errorf("acquire workspace: %w", ctx.Err())
	}
	locked, err := w.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil || !locked {
		<-w.sem
		if err == nil {
			err = ctx.Err()
		}
		return "", nil, fmt.Errorf("acquire workspace lock %s: %w", w.lock.Path(), err)
	}

	release := func() {
		_ = w.lock.Unlock()
		<-w.sem
	}

	// The previous checkout is discarded so every reconciliation clones fresh.
	dir := filepath.Join(w.dir, "repo")
	if err := os.RemoveAll(dir); err != nil {
		release()
		return "", nil, fmt.Errorf("discard previous checkout: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		release()
		return "", nil, fmt.Errorf("create checkout dir: %w", err)
	}
	return dir, release, nil
}
