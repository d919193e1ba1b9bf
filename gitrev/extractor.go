package gitrev

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/synoet/spellbook/core"
)

// ZeroHash resolves to "no tree": every read against it fails with PathNotFoundInTree.
const ZeroHash = core.ZeroHash

// Cloner makes a repository available in dir.
type Cloner interface {
	Clone(ctx context.Context, dir, url string) (*git.Repository, error)
}

// ClonerFunc adapts a function to Cloner.
type ClonerFunc func(ctx context.Context, dir, url string) (*git.Repository, error)

func (f ClonerFunc) Clone(ctx context.Context, dir, url string) (*git.Repository, error) {
	return f(ctx, dir, url)
}

// GitCloner performs a bare clone with go-git. Token, when set, is sent as
// HTTP basic auth the way GitHub expects installation and personal tokens.
type GitCloner struct {
	Token string
}

func (c GitCloner) Clone(ctx context.Context, dir, url string) (*git.Repository, error) {
	opts := &git.CloneOptions{URL: url, Tags: git.NoTags}
	if c.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: c.Token}
	}
	return git.PlainCloneContext(ctx, dir, true, opts)
}

// Extractor reads manifest content at the revisions of a push.
type Extractor struct {
	workspace *Workspace
	cloner    Cloner
	logger    *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger discards output.
func NewExtractor(ws *Workspace, cloner Cloner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{workspace: ws, cloner: cloner, logger: logger.With("component", "gitrev")}
}

// Extract returns the text of every path in changes: added files at After,
// removed files at Before and modified files at both.
func (x *Extractor) Extract(ctx context.Context, rev core.Revision, changes core.Changes) (*core.RawDiff, error) {
	var diff *core.RawDiff
	err := x.withRevisions(ctx, rev, func(before, after *object.Commit) error {
		var err error
		diff, err = readChanges(before, after, rev, changes)
		return err
	})
	return diff, err
}

// ExtractTree diffs the trees of Before and After itself instead of trusting
// a path list, keeping the paths f accepts. Used when a push carries no file
// lists, such as manual syncs.
func (x *Extractor) ExtractTree(ctx context.Context, rev core.Revision, f core.PathFilter) (core.Changes, *core.RawDiff, error) {
	var (
		changes core.Changes
		diff    *core.RawDiff
	)
	err := x.withRevisions(ctx, rev, func(before, after *object.Commit) error {
		var err error
		changes, err = treeChanges(before, after, f)
		if err != nil {
			return core.NewError(core.RepositoryUnavailable, "diff trees", err)
		}
		diff, err = readChanges(before, after, rev, changes)
		return err
	})
	return changes, diff, err
}

func (x *Extractor) withRevisions(ctx context.Context, rev core.Revision, fn func(before, after *object.Commit) error) error {
	if rev.RepoURL == "" {
		return core.NewError(core.RepositoryUnavailable, "push names no repository", nil)
	}

	dir, release, err := x.workspace.Acquire(ctx)
	if err != nil {
		return core.NewError(core.RepositoryUnavailable, "acquire workspace", err)
	}
	defer release()

	x.logger.Info("cloning repository", "url", redact(rev.RepoURL), "dir", dir)
	repo, err := x.cloner.Clone(ctx, dir, rev.RepoURL)
	if err != nil {
		return core.NewError(core.RepositoryUnavailable, fmt.Sprintf("clone %s", redact(rev.RepoURL)), err)
	}

	before, err := resolve(repo, rev.Before)
	if err != nil {
		return err
	}
	after, err := resolve(repo, rev.After)
	if err != nil {
		return err
	}
	return fn(before, after)
}

// resolve returns the commit for hash, or nil for the zero hash.
func resolve(repo *git.Repository, hash string) (*object.Commit, error) {
	if hash == ZeroHash {
		return nil, nil
	}
	if len(hash) != 40 {
		return nil, core.NewError(core.RevisionNotFound, fmt.Sprintf("malformed commit hash %q", hash), nil)
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return nil, core.NewError(core.RevisionNotFound, fmt.Sprintf("malformed commit hash %q", hash), nil)
	}

	commit, err := repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, core.NewError(core.RevisionNotFound, fmt.Sprintf("commit %s", hash), err)
	}
	return commit, nil
}

func readChanges(before, after *object.Commit, rev core.Revision, changes core.Changes) (*core.RawDiff, error) {
	diff := &core.RawDiff{}

	for _, p := range changes.Modified {
		current, err := readFile(after, rev.After, p)
		if err != nil {
			return nil, err
		}
		previous, err := readFile(before, rev.Before, p)
		if err != nil {
			return nil, err
		}
		diff.Modified = append(diff.Modified, core.ModifiedFile{Path: p, Current: current, Previous: previous})
	}
	for _, p := range changes.Added {
		content, err := readFile(after, rev.After, p)
		if err != nil {
			return nil, err
		}
		diff.Added = append(diff.Added, core.ManifestFile{Path: p, Content: content})
	}
	for _, p := range changes.Removed {
		content, err := readFile(before, rev.Before, p)
		if err != nil {
			return nil, err
		}
		diff.Removed = append(diff.Removed, core.ManifestFile{Path: p, Content: content})
	}
	return diff, nil
}

func readFile(commit *object.Commit, hash, path string) (string, error) {
	if commit == nil {
		return "", core.NewError(core.PathNotFoundInTree,
			fmt.Sprintf("no tree at revision %s", short(hash)), nil).WithPath(path)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", core.NewError(core.RepositoryUnavailable, fmt.Sprintf("tree of %s", short(hash)), err)
	}
	f, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
			return "", core.NewError(core.PathNotFoundInTree,
				fmt.Sprintf("not in tree at %s", short(hash)), err).WithPath(path)
		}
		return "", core.NewError(core.RepositoryUnavailable, fmt.Sprintf("read %s at %s", path, short(hash)), err)
	}
	content, err := f.Contents()
	if err != nil {
		return "", core.NewError(core.RepositoryUnavailable, fmt.Sprintf("read %s at %s", path, short(hash)), err)
	}
	return content, nil
}

// treeChanges classifies the paths that differ between two commits.
func treeChanges(before, after *object.Commit, f core.PathFilter) (core.Changes, error) {
	var changes core.Changes
	match := func(p string) bool { return f == nil || f.Match(p) }

	if after == nil {
		return changes, nil
	}
	afterTree, err := after.Tree()
	if err != nil {
		return changes, err
	}

	if before == nil {
		err := afterTree.Files().ForEach(func(file *object.File) error {
			if match(file.Name) {
				changes.Added = append(changes.Added, file.Name)
			}
			return nil
		})
		return changes, err
	}

	beforeTree, err := before.Tree()
	if err != nil {
		return changes, err
	}
	diffs, err := beforeTree.Diff(afterTree)
	if err != nil {
		return changes, err
	}
	for _, change := range diffs {
		action, err := change.Action()
		if err != nil {
			return changes, err
		}
		switch action {
		case merkletrie.Insert:
			if match(change.To.Name) {
				changes.Added = append(changes.Added, change.To.Name)
			}
		case merkletrie.Delete:
			if match(change.From.Name) {
				changes.Removed = append(changes.Removed, change.From.Name)
			}
		case merkletrie.Modify:
			// Rename detection reports a moved file as one modification; each
			// path only exists on its own side.
			if change.From.Name != change.To.Name {
				if match(change.From.Name) {
					changes.Removed = append(changes.Removed, change.From.Name)
				}
				if match(change.To.Name) {
					changes.Added = append(changes.Added, change.To.Name)
				}
				continue
			}
			if match(change.To.Name) {
				changes.Modified = append(changes.Modified, change.To.Name)
			}
		}
	}
	return changes, nil
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// redact drops credentials embedded in a clone URL before it is logged.
func redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			return scheme + "://***@" + rest[at+1:]
		}
	}
	return url
}
