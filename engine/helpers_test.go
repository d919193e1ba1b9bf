package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/engine"
	"github.com/synoet/spellbook/index"
	"github.com/synoet/spellbook/index/embedder/mock"
	"github.com/synoet/spellbook/index/store/chromem"
)

// fakeExtractor returns a fixed diff.
type fakeExtractor struct {
	diff  *core.RawDiff
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, rev core.Revision, changes core.Changes) (*core.RawDiff, error) {
	f.calls++
	return f.diff, f.err
}

func (f *fakeExtractor) ExtractTree(ctx context.Context, rev core.Revision, filter core.PathFilter) (core.Changes, *core.RawDiff, error) {
	f.calls++
	return core.Changes{}, f.diff, f.err
}

// recordingStore wraps an in-memory chromem store, logs calls in order and
// can fail a number of calls per identity.
type recordingStore struct {
	index.Store

	mu       sync.Mutex
	calls    []string
	failures map[string]int
	failErr  error
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	store, err := chromem.New(chromem.Options{})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return &recordingStore{Store: store, failures: make(map[string]int), failErr: errors.New("connection reset")}
}

func (s *recordingStore) failNext(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = n
}

func (s *recordingStore) record(op, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op+":"+id)
	if s.failures[id] > 0 {
		s.failures[id]--
		return s.failErr
	}
	return nil
}

func (s *recordingStore) Upsert(ctx context.Context, rec index.Record) error {
	if err := s.record("upsert", rec.ID); err != nil {
		return err
	}
	return s.Store.Upsert(ctx, rec)
}

func (s *recordingStore) Delete(ctx context.Context, id string) error {
	if err := s.record("delete", id); err != nil {
		return err
	}
	return s.Store.Delete(ctx, id)
}

func (s *recordingStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if len(c) > len(op) && c[:len(op)+1] == op+":" {
			n++
		}
	}
	return n
}

func (s *recordingStore) size() int {
	return s.Store.(*chromem.ChromemStore).Count()
}

// countingEmbedder wraps the mock embedder behind an index.Gateway and fails
// entries whose invocation is listed in fail.
type countingEmbedder struct {
	gw *index.Gateway

	mu      sync.Mutex
	entries int
	fail    map[string]bool
}

func newCountingEmbedder(t *testing.T) *countingEmbedder {
	t.Helper()
	gw, err := index.NewGateway(mock.New(0))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gw.Close() })
	return &countingEmbedder{gw: gw, fail: make(map[string]bool)}
}

func (c *countingEmbedder) EmbedEntry(ctx context.Context, entry core.Entry) ([]float32, error) {
	c.mu.Lock()
	c.entries++
	fail := c.fail[entry.Invocation]
	c.mu.Unlock()
	if fail {
		return nil, core.NewError(core.EmbeddingUnavailable, fmt.Sprintf("embed entry %q", entry.Invocation), errors.New("provider timeout"))
	}
	return c.gw.EmbedEntry(ctx, entry)
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	return c.gw.EmbedQuery(ctx, q)
}

func (c *countingEmbedder) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries
}

type harness struct {
	engine    *engine.Engine
	extractor *fakeExtractor
	store     *recordingStore
	embedder  *countingEmbedder
	registry  *prometheus.Registry
}

func newHarness(t *testing.T, opts ...engine.Option) *harness {
	t.Helper()
	h := &harness{
		extractor: &fakeExtractor{diff: &core.RawDiff{}},
		store:     newRecordingStore(t),
		embedder:  newCountingEmbedder(t),
		registry:  prometheus.NewRegistry(),
	}
	opts = append([]engine.Option{
		engine.WithMetrics(h.registry),
		engine.WithRetry(engine.RetryPolicy{Attempts: 2}),
	}, opts...)
	h.engine = engine.New(h.extractor, h.store, h.embedder, opts...)
	return h
}

var testRev = core.Revision{
	Before:  "1111111111111111111111111111111111111111",
	After:   "2222222222222222222222222222222222222222",
	RepoURL: "https://example.com/registry.git",
}

func manifestJSON(name string, entries ...core.Entry) string {
	m := core.Manifest{Name: name, Entries: entries}
	return mustJSON(m)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// counter reads a counter from the harness registry. Missing series read as 0.
func (h *harness) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		want, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if want != lp.GetValue() {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
