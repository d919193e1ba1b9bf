package core_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/synoet/spellbook/core"
)

func TestPushEvent_Decode(t *testing.T) {
	body := []byte(`{
		"before": "1111111111111111111111111111111111111111",
		"after": "2222222222222222222222222222222222222222",
		"head_commit": {
			"added": ["registry/a.json", "README.md"],
			"removed": ["registry/b.json"],
			"modified": ["registry/c.json", "docs/c.txt"],
			"author": {"username": "octocat", "email": "octo@example.com"}
		},
		"repository": {"url": "https://github.com/acme/registry", "clone_url": "https://github.com/acme/registry.git"}
	}`)

	var ev core.PushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rev := ev.Revision()
	if rev.RepoURL != "https://github.com/acme/registry.git" {
		t.Errorf("expected clone_url to win, got %q", rev.RepoURL)
	}
	if rev.Before[0] != '1' || rev.After[0] != '2' {
		t.Errorf("unexpected revision %+v", rev)
	}

	changes := ev.Changes(core.SuffixFilter(".json"))
	want := core.Changes{
		Added:    []string{"registry/a.json"},
		Removed:  []string{"registry/b.json"},
		Modified: []string{"registry/c.json"},
	}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("Changes() = %+v, want %+v", changes, want)
	}
	if changes.Len() != 3 {
		t.Errorf("Len() = %d", changes.Len())
	}
}

func TestPushEvent_NoHeadCommit(t *testing.T) {
	ev := core.PushEvent{Before: "a", After: "b"}
	if got := ev.Changes(core.SuffixFilter(".json")); got.Len() != 0 {
		t.Errorf("expected no changes, got %+v", got)
	}
}

func TestErrorCodes(t *testing.T) {
	cause := core.NewError(core.PathNotFoundInTree, "file not found", nil).WithPath("a.json")
	if !core.IsCode(cause, core.PathNotFoundInTree) {
		t.Error("IsCode should match")
	}
	if core.CodeOf(nil) != "" {
		t.Error("CodeOf(nil) should be empty")
	}
	if got := cause.Error(); got != "[PATH_NOT_FOUND_IN_TREE] file not found (a.json)" {
		t.Errorf("Error() = %q", got)
	}
}
