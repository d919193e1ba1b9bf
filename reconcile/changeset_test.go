package reconcile_test

import (
	"testing"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/reconcile"
)

const registryA = `{"name": "files", "commands": [{"command": "ls -la", "description": "list files"}]}`

func TestBuild_AddedFile(t *testing.T) {
	cs := reconcile.Build(&core.RawDiff{
		Added: []core.ManifestFile{{Path: "registry-a.json", Content: registryA}},
	})

	if len(cs.Add) != 1 || !cs.Add[0].Equal(entry("ls -la", "list files")) {
		t.Fatalf("unexpected add-set %+v", cs.Add)
	}
	if len(cs.Remove) != 0 {
		t.Errorf("expected empty remove-set, got %+v", cs.Remove)
	}
}

func TestBuild_ModifiedDescription(t *testing.T) {
	cs := reconcile.Build(&core.RawDiff{
		Modified: []core.ModifiedFile{{
			Path:     "registry-a.json",
			Current:  `{"name": "files", "commands": [{"command": "ls -la", "description": "list all files, long format"}]}`,
			Previous: registryA,
		}},
	})

	if len(cs.Add) != 1 || cs.Add[0].Description != "list all files, long format" {
		t.Fatalf("unexpected add-set %+v", cs.Add)
	}
	if len(cs.Remove) != 1 || cs.Remove[0].Description != "list files" {
		t.Fatalf("unexpected remove-set %+v", cs.Remove)
	}
	if cs.Add[0].ID() != cs.Remove[0].ID() {
		t.Error("expected both sides to share an identity")
	}
}

func TestBuild_RemovedFile(t *testing.T) {
	cs := reconcile.Build(&core.RawDiff{
		Removed: []core.ManifestFile{{
			Path: "registry-b.json",
			Content: `{"name": "git", "commands": [
				{"command": "git status", "description": "show status"},
				{"command": "git log --oneline", "description": "compact history"}
			]}`,
		}},
	})

	if len(cs.Remove) != 2 {
		t.Fatalf("expected 2 removed entries, got %d", len(cs.Remove))
	}
	if len(cs.Add) != 0 {
		t.Errorf("expected empty add-set, got %+v", cs.Add)
	}
}

func TestBuild_MalformedFileIsIsolated(t *testing.T) {
	cs := reconcile.Build(&core.RawDiff{
		Added: []core.ManifestFile{
			{Path: "broken.json", Content: `{"name": "broken", "commands": [`},
			{Path: "registry-a.json", Content: registryA},
		},
		Modified: []core.ModifiedFile{{
			Path:     "half.json",
			Current:  registryA,
			Previous: `not json`,
		}},
	})

	if len(cs.Add) != 1 || cs.Add[0].Invocation != "ls -la" {
		t.Fatalf("expected the valid file to be reconciled, got %+v", cs.Add)
	}
	if len(cs.Skipped) != 2 {
		t.Fatalf("expected 2 skipped files, got %+v", cs.Skipped)
	}
	if cs.Skipped[0].Path != "broken.json" || cs.Skipped[0].Side != reconcile.SideCurrent {
		t.Errorf("unexpected first skip %+v", cs.Skipped[0])
	}
	if cs.Skipped[1].Path != "half.json" || cs.Skipped[1].Side != reconcile.SidePrevious {
		t.Errorf("unexpected second skip %+v", cs.Skipped[1])
	}
	if !core.IsCode(cs.Skipped[0].Err, core.MalformedManifest) {
		t.Errorf("expected MALFORMED_MANIFEST, got %v", cs.Skipped[0].Err)
	}
}

func TestBuild_DuplicatesAcrossFilesAreKept(t *testing.T) {
	cs := reconcile.Build(&core.RawDiff{
		Added: []core.ManifestFile{
			{Path: "a.json", Content: registryA},
			{Path: "b.json", Content: registryA},
		},
	})

	if len(cs.Add) != 2 {
		t.Fatalf("expected both copies in the add-set, got %d", len(cs.Add))
	}
	if ids := cs.AddIdentities(); len(ids) != 1 {
		t.Errorf("expected 1 distinct identity, got %d", len(ids))
	}
}

func TestFromManifest(t *testing.T) {
	m, err := core.ParseManifest([]byte(registryA))
	if err != nil {
		t.Fatal(err)
	}
	cs := reconcile.FromManifest(m)
	if len(cs.Add) != 1 || len(cs.Remove) != 0 || cs.Empty() {
		t.Errorf("unexpected change set %+v", cs)
	}
	if !reconcile.FromManifest(nil).Empty() {
		t.Error("nil manifest should produce an empty change set")
	}
}
