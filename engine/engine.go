// Package engine keeps the vector index in agreement with the registry.
//
// A push is turned into a revision pair and a list of changed manifests,
// the manifests are read at both revisions, reconciled into an add-set and a
// remove-set, and applied to the index: every delete first, then every
// embed and upsert. The same engine answers search queries.
package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/index"
	"github.com/synoet/spellbook/ledger"
	"github.com/synoet/spellbook/reconcile"
)

// Extractor reads manifests at the two revisions of a push (see gitrev.Extractor).
type Extractor interface {
	Extract(ctx context.Context, rev core.Revision, changes core.Changes) (*core.RawDiff, error)
	ExtractTree(ctx context.Context, rev core.Revision, f core.PathFilter) (core.Changes, *core.RawDiff, error)
}

// Embedder turns entries and queries into vectors (see index.Gateway).
type Embedder interface {
	EmbedEntry(ctx context.Context, entry core.Entry) ([]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Ledger records sync runs and queues failed entries (see ledger.Ledger).
type Ledger interface {
	BeginSync(ctx context.Context, rev core.Revision) (int64, error)
	FinishSync(ctx context.Context, id int64, out ledger.Outcome) error
	RecordFailure(ctx context.Context, op ledger.Op, entry core.Entry, cause error) (int64, error)
	ResolveIdentity(ctx context.Context, identity string) (int64, error)
	PendingFailures(ctx context.Context, limit int) ([]ledger.Failure, error)
	ResolveFailure(ctx context.Context, id int64) error
	BumpFailure(ctx context.Context, id int64, cause error) error
}

// Engine runs reconciliations and searches.
type Engine struct {
	extractor Extractor
	store     index.Store
	embedder  Embedder

	ledger  Ledger       // Optional: sync history and failure queue
	metrics *Metrics     // Optional: Prometheus collectors
	tracer  trace.Tracer // Optional: defaults to the global provider
	logger  *slog.Logger
	filter  core.PathFilter
	workers int
	retry   RetryPolicy

	searchLimit    int
	searchMaxLimit int
}

// Option configures the engine.
type Option func(*Engine)

// WithLedger records syncs and queues failed entries for Replay.
func WithLedger(l Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithMetrics registers the engine's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = NewMetrics(reg)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithWorkers bounds how many entries of one phase are processed at once.
// The default of 1 processes entries strictly one at a time.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRetry sets the retry policy for vector store calls.
func WithRetry(p RetryPolicy) Option {
	return func(e *Engine) {
		e.retry = p
	}
}

// WithFilter selects which pushed paths are manifests. Defaults to a ".json" suffix.
func WithFilter(f core.PathFilter) Option {
	return func(e *Engine) {
		e.filter = f
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithSearchLimits sets the default and maximum number of search results.
func WithSearchLimits(def, max int) Option {
	return func(e *Engine) {
		if def > 0 {
			e.searchLimit = def
		}
		if max > 0 {
			e.searchMaxLimit = max
		}
	}
}

// New creates an engine.
func New(extractor Extractor, store index.Store, embedder Embedder, opts ...Option) *Engine {
	e := &Engine{
		extractor:      extractor,
		store:          store,
		embedder:       embedder,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		filter:         core.SuffixFilter(".json"),
		workers:        1,
		retry:          DefaultRetryPolicy,
		searchLimit:    DefaultSearchLimit,
		searchMaxLimit: DefaultSearchMaxLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/synoet/spellbook/engine")
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(prometheus.NewRegistry())
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// HandlePush reconciles the index with a push webhook.
func (e *Engine) HandlePush(ctx context.Context, event *core.PushEvent) (*Report, error) {
	rev := event.Revision()
	logger := e.logger.With("before", rev.Before, "after", rev.After, "repo", rev.RepoURL)

	if rev.After == core.ZeroHash {
		logger.Info("branch deleted, nothing to reconcile")
		return &Report{Revision: rev}, nil
	}
	if event.HeadCommit == nil {
		logger.Info("push carries no file lists, diffing trees")
		return e.SyncTree(ctx, rev)
	}

	logger.Info("received push",
		"author", event.HeadCommit.Author.Username,
		"email", event.HeadCommit.Author.Email,
		"added", len(event.HeadCommit.Added),
		"removed", len(event.HeadCommit.Removed),
		"modified", len(event.HeadCommit.Modified),
	)
	return e.Sync(ctx, rev, event.Changes(e.filter))
}

// Sync reads the changed manifests at both revisions and applies the
// reconciled change set. Extraction failures abort before any index mutation.
func (e *Engine) Sync(ctx context.Context, rev core.Revision, changes core.Changes) (*Report, error) {
	return e.sync(ctx, rev, func(ctx context.Context) (*core.RawDiff, error) {
		if changes.Len() == 0 {
			return &core.RawDiff{}, nil
		}
		return e.extractor.Extract(ctx, rev, changes)
	})
}

// SyncTree is Sync for callers without a path list: the trees of both
// revisions are diffed to find the changed manifests.
func (e *Engine) SyncTree(ctx context.Context, rev core.Revision) (*Report, error) {
	return e.sync(ctx, rev, func(ctx context.Context) (*core.RawDiff, error) {
		_, diff, err := e.extractor.ExtractTree(ctx, rev, e.filter)
		return diff, err
	})
}

func (e *Engine) sync(ctx context.Context, rev core.Revision, extract func(context.Context) (*core.RawDiff, error)) (report *Report, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "spellbook.sync", trace.WithAttributes(
		attribute.String("spellbook.before", rev.Before),
		attribute.String("spellbook.after", rev.After),
		attribute.String("spellbook.repo", rev.RepoURL),
	))
	defer span.End()

	syncID := e.beginSync(ctx, rev)
	defer func() {
		if report == nil {
			report = &Report{}
		}
		report.Revision = rev
		report.Duration = time.Since(start)

		status := "succeeded"
		if err != nil {
			status = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		e.metrics.syncsTotal.WithLabelValues(status).Inc()
		e.metrics.syncDuration.Observe(report.Duration.Seconds())
		e.finishSync(ctx, syncID, report, err)
	}()

	diff, err := extract(ctx)
	if err != nil {
		e.logger.Error("extraction failed", "after", rev.After, "code", core.CodeOf(err), "error", err)
		return nil, err
	}

	cs := reconcile.Build(diff)
	e.logger.Info("reconciled push",
		"after", rev.After,
		"add", len(cs.Add),
		"remove", len(cs.Remove),
		"skipped_files", len(cs.Skipped),
	)
	return e.Apply(ctx, cs)
}

// IndexManifest upserts every entry of one manifest without diffing.
func (e *Engine) IndexManifest(ctx context.Context, m *core.Manifest) (*Report, error) {
	e.logger.Info("indexing manifest", "name", m.Name, "entries", len(m.Entries))
	return e.Apply(ctx, reconcile.FromManifest(m))
}

func (e *Engine) beginSync(ctx context.Context, rev core.Revision) int64 {
	if e.ledger == nil {
		return 0
	}
	id, err := e.ledger.BeginSync(ctx, rev)
	if err != nil {
		e.logger.Warn("could not record sync start", "error", err)
		return 0
	}
	return id
}

func (e *Engine) finishSync(ctx context.Context, id int64, r *Report, err error) {
	if e.ledger == nil || id == 0 {
		return
	}
	out := ledger.Outcome{
		Deleted:  r.Deleted,
		Upserted: r.Upserted,
		Failed:   len(r.EmbeddingFailures) + len(r.IndexFailures),
		Skipped:  len(r.Skipped),
		Err:      err,
	}
	// The request context may already be cancelled; the outcome is still worth keeping.
	if ferr := e.ledger.FinishSync(context.WithoutCancel(ctx), id, out); ferr != nil {
		e.logger.Warn("could not record sync outcome", "sync_id", id, "error", ferr)
	}
}
