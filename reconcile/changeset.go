package reconcile

import (
	"github.com/synoet/spellbook/core"
)

// Side names which revision of a file failed to parse.
type Side string

const (
	SideCurrent  Side = "current"
	SidePrevious Side = "previous"
)

// FileError records a registry file whose contribution was skipped.
type FileError struct {
	Path string `json:"path"`
	Side Side   `json:"side"`
	Err  error  `json:"-"`
}

func (f FileError) Error() string {
	return f.Path + " (" + string(f.Side) + "): " + f.Err.Error()
}

// ChangeSet is the commit-level outcome of reconciliation.
//
// Add and Remove are not deduplicated by identity: two files adding the same
// invocation both land in Add.
type ChangeSet struct {
	Add     []core.Entry
	Remove  []core.Entry
	Skipped []FileError
}

// Empty reports whether applying the change set would touch the index.
func (c *ChangeSet) Empty() bool {
	return len(c.Add) == 0 && len(c.Remove) == 0
}

// AddIdentities returns the distinct identities of the add-set.
func (c *ChangeSet) AddIdentities() []string {
	return distinctIDs(c.Add)
}

// RemoveIdentities returns the distinct identities of the remove-set.
func (c *ChangeSet) RemoveIdentities() []string {
	return distinctIDs(c.Remove)
}

// Build parses every file of a push and merges the per-file contributions.
// A file that fails to parse is skipped; the others are still reconciled.
func Build(diff *core.RawDiff) *ChangeSet {
	cs := &ChangeSet{}
	if diff == nil {
		return cs
	}

	for _, f := range diff.Added {
		m, err := core.ParseManifest([]byte(f.Content))
		if err != nil {
			cs.skip(f.Path, SideCurrent, err)
			continue
		}
		cs.Add = append(cs.Add, m.Entries...)
	}

	for _, f := range diff.Removed {
		m, err := core.ParseManifest([]byte(f.Content))
		if err != nil {
			cs.skip(f.Path, SidePrevious, err)
			continue
		}
		cs.Remove = append(cs.Remove, m.Entries...)
	}

	for _, f := range diff.Modified {
		curr, err := core.ParseManifest([]byte(f.Current))
		if err != nil {
			cs.skip(f.Path, SideCurrent, err)
			continue
		}
		prev, err := core.ParseManifest([]byte(f.Previous))
		if err != nil {
			cs.skip(f.Path, SidePrevious, err)
			continue
		}
		added, removed := Split(Compare(prev.Entries, curr.Entries))
		cs.Add = append(cs.Add, added...)
		cs.Remove = append(cs.Remove, removed...)
	}

	return cs
}

// FromManifest builds a change set that indexes every entry of one manifest.
func FromManifest(m *core.Manifest) *ChangeSet {
	cs := &ChangeSet{}
	if m != nil {
		cs.Add = append(cs.Add, m.Entries...)
	}
	return cs
}

func (c *ChangeSet) skip(path string, side Side, err error) {
	if e, ok := err.(*core.Error); ok {
		e.WithPath(path)
	}
	c.Skipped = append(c.Skipped, FileError{Path: path, Side: side, Err: err})
}

func distinctIDs(entries []core.Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	var ids []string
	for _, e := range entries {
		id := e.ID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
