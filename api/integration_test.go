package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/synoet/spellbook/api"
	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/engine"
	"github.com/synoet/spellbook/index"
	"github.com/synoet/spellbook/index/embedder/mock"
	"github.com/synoet/spellbook/index/store/chromem"
)

type diffExtractor struct {
	diff *core.RawDiff
}

func (d diffExtractor) Extract(ctx context.Context, rev core.Revision, changes core.Changes) (*core.RawDiff, error) {
	return d.diff, nil
}

func (d diffExtractor) ExtractTree(ctx context.Context, rev core.Revision, f core.PathFilter) (core.Changes, *core.RawDiff, error) {
	return core.Changes{}, d.diff, nil
}

func TestWebhookThenSearch(t *testing.T) {
	store, err := chromem.New(chromem.Options{})
	if err != nil {
		t.Fatal(err)
	}
	gw, err := index.NewGateway(mock.New(0))
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	diff := &core.RawDiff{Added: []core.ManifestFile{{Path: "git.json", Content: testManifest}}}
	eng := engine.New(diffExtractor{diff: diff}, store, gw, engine.WithMetrics(reg))
	s := api.NewServer(eng, api.Options{Gatherer: reg})

	rec := do(t, s, http.MethodPost, "/webhook", testPush, http.Header{"X-Github-Event": {"push"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 record, got %d", store.Count())
	}

	rec = do(t, s, http.MethodGet, "/search?query=git+log", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var entries []core.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Invocation != "git log --oneline" || entries[0].Description != "compact history" {
		t.Errorf("unexpected search results %+v", entries)
	}
}
