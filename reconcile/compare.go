// Package reconcile turns the raw content of a push into the set of entries to
// add to and remove from the index.
package reconcile

import "github.com/synoet/spellbook/core"

// ChangeKind tags the outcome of comparing one entry across two revisions.
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Added
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unchanged"
	}
}

// Change is one tagged entry.
type Change struct {
	Kind  ChangeKind
	Entry core.Entry
}

// Compare diffs two entry lists by full-value equality.
//
// Entries present only in current are Added, entries present only in previous
// are Removed, and entries present in both are Unchanged. Duplicates within one
// side collapse. Added and Unchanged follow current's order; Removed follows
// previous's order.
func Compare(previous, current []core.Entry) []Change {
	prev := keySet(previous)
	curr := keySet(current)

	var changes []Change
	seen := make(map[string]struct{}, len(current))
	for _, e := range current {
		k := e.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kind := Added
		if _, ok := prev[k]; ok {
			kind = Unchanged
		}
		changes = append(changes, Change{Kind: kind, Entry: e})
	}

	seen = make(map[string]struct{}, len(previous))
	for _, e := range previous {
		k := e.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := curr[k]; !ok {
			changes = append(changes, Change{Kind: Removed, Entry: e})
		}
	}
	return changes
}

// Split separates tagged changes into the added and removed entries.
func Split(changes []Change) (added, removed []core.Entry) {
	for _, c := range changes {
		switch c.Kind {
		case Added:
			added = append(added, c.Entry)
		case Removed:
			removed = append(removed, c.Entry)
		}
	}
	return added, removed
}

func keySet(entries []core.Entry) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.Key()] = struct{}{}
	}
	return set
}
