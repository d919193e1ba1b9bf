package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/index"
	"github.com/synoet/spellbook/ledger"
	"github.com/synoet/spellbook/reconcile"
)

// Report summarizes one reconciliation. Counts are distinct identities, so an
// entry added by two files in the same push counts once.
type Report struct {
	Revision          core.Revision  `json:"revision"`
	Deleted           int            `json:"deleted"`
	Upserted          int            `json:"upserted"`
	Skipped           []SkippedFile  `json:"skipped,omitempty"`
	EmbeddingFailures []EntryFailure `json:"embedding_failures,omitempty"`
	IndexFailures     []EntryFailure `json:"index_failures,omitempty"`
	Duration          time.Duration  `json:"duration_ns"`
}

// SkippedFile is a manifest whose contribution was dropped because it did not parse.
type SkippedFile struct {
	Path   string `json:"path"`
	Side   string `json:"side"`
	Reason string `json:"reason"`
}

// EntryFailure is one entry whose embed, upsert or delete did not complete.
type EntryFailure struct {
	Identity string         `json:"identity"`
	Command  string         `json:"command"`
	Op       ledger.Op      `json:"op"`
	Code     core.ErrorCode `json:"code"`
	Message  string         `json:"message"`
}

// OK reports whether every entry was applied.
func (r *Report) OK() bool {
	return len(r.EmbeddingFailures) == 0 && len(r.IndexFailures) == 0
}

// collector gathers per-entry results from concurrent workers.
type collector struct {
	mu       sync.Mutex
	deleted  map[string]struct{}
	upserted map[string]struct{}
	report   *Report
	// queue records failures in the ledger; replays bump existing rows instead.
	queue bool
}

func (c *collector) applied(op ledger.Op, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if op == ledger.OpDelete {
		c.deleted[id] = struct{}{}
	} else {
		c.upserted[id] = struct{}{}
	}
}

// done reports whether op landed for id.
func (c *collector) done(op ledger.Op, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if op == ledger.OpDelete {
		_, ok := c.deleted[id]
		return ok
	}
	_, ok := c.upserted[id]
	return ok
}

func (c *collector) failed(f EntryFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.Code == core.EmbeddingUnavailable {
		c.report.EmbeddingFailures = append(c.report.EmbeddingFailures, f)
	} else {
		c.report.IndexFailures = append(c.report.IndexFailures, f)
	}
}

// Apply deletes every entry of the remove-set, waits for all deletes to
// finish, then embeds and upserts every entry of the add-set.
//
// One entry failing never stops the others. Embedding failures skip the
// entry and are reported. Store failures are retried, queued in the ledger
// and returned as an IndexOperationFailed error once both phases are done.
// A cancelled ctx stops scheduling new entries; applied entries stay applied.
func (e *Engine) Apply(ctx context.Context, cs *reconcile.ChangeSet) (*Report, error) {
	c, err := e.apply(ctx, cs, true)
	return c.report, err
}

func (e *Engine) apply(ctx context.Context, cs *reconcile.ChangeSet, queue bool) (*collector, error) {
	ctx, span := e.tracer.Start(ctx, "spellbook.apply", trace.WithAttributes(
		attribute.Int("spellbook.add", len(cs.Add)),
		attribute.Int("spellbook.remove", len(cs.Remove)),
		attribute.Int("spellbook.skipped_files", len(cs.Skipped)),
	))
	defer span.End()

	c := &collector{
		deleted:  make(map[string]struct{}),
		upserted: make(map[string]struct{}),
		report:   &Report{},
		queue:    queue,
	}
	for _, fe := range cs.Skipped {
		e.logger.Warn("skipping malformed manifest", "path", fe.Path, "side", fe.Side, "error", fe.Err)
		e.metrics.manifestSkipped.Inc()
		c.report.Skipped = append(c.report.Skipped, SkippedFile{Path: fe.Path, Side: string(fe.Side), Reason: reason(fe.Err)})
	}

	e.runPhase(ctx, cs.Remove, func(ctx context.Context, entry core.Entry) {
		e.deleteEntry(ctx, c, entry)
	})
	// Barrier: no upsert starts before every delete has finished, so a
	// replaced entry ends with exactly one record holding the new content.
	if ctx.Err() == nil {
		e.runPhase(ctx, cs.Add, func(ctx context.Context, entry core.Entry) {
			e.upsertEntry(ctx, c, entry)
		})
	}

	r := c.report
	r.Deleted = len(c.deleted)
	r.Upserted = len(c.upserted)
	e.metrics.entriesApplied.WithLabelValues(string(ledger.OpDelete)).Add(float64(r.Deleted))
	e.metrics.entriesApplied.WithLabelValues(string(ledger.OpUpsert)).Add(float64(r.Upserted))
	span.SetAttributes(
		attribute.Int("spellbook.deleted", r.Deleted),
		attribute.Int("spellbook.upserted", r.Upserted),
	)

	e.logger.Info("applied change set",
		"deleted", r.Deleted,
		"upserted", r.Upserted,
		"embedding_failures", len(r.EmbeddingFailures),
		"index_failures", len(r.IndexFailures),
		"skipped_files", len(r.Skipped),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return c, err
	}
	if n := len(r.IndexFailures); n > 0 {
		first := r.IndexFailures[0]
		err := core.NewError(core.IndexOperationFailed,
			fmt.Sprintf("%d index operation(s) failed, first: %s %q: %s", n, first.Op, first.Command, first.Message), nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return c, err
	}
	span.SetStatus(codes.Ok, "")
	return c, nil
}

// runPhase processes entries with at most e.workers in flight and returns
// once all scheduled entries are done.
func (e *Engine) runPhase(ctx context.Context, entries []core.Entry, fn func(context.Context, core.Entry)) {
	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) deleteEntry(ctx context.Context, c *collector, entry core.Entry) {
	id := entry.ID()
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		return e.store.Delete(ctx, id)
	})
	if err != nil {
		e.entryFailed(ctx, c, ledger.OpDelete, entry, core.NewError(core.IndexOperationFailed, "delete", err))
		return
	}
	e.logger.Debug("deleted entry", "identity", id, "command", entry.Invocation)
	e.entryApplied(ctx, c, ledger.OpDelete, id)
}

func (e *Engine) upsertEntry(ctx context.Context, c *collector, entry core.Entry) {
	id := entry.ID()
	vec, err := e.embedder.EmbedEntry(ctx, entry)
	if err != nil {
		if !core.IsCode(err, core.EmbeddingUnavailable) {
			err = core.NewError(core.EmbeddingUnavailable, "embed entry", err)
		}
		e.entryFailed(ctx, c, ledger.OpUpsert, entry, err)
		return
	}

	rec := index.Record{ID: id, Vector: vec, Payload: entry.Payload()}
	err = e.retry.Do(ctx, func(ctx context.Context) error {
		return e.store.Upsert(ctx, rec)
	})
	if err != nil {
		e.entryFailed(ctx, c, ledger.OpUpsert, entry, core.NewError(core.IndexOperationFailed, "upsert", err))
		return
	}
	e.logger.Debug("upserted entry", "identity", id, "command", entry.Invocation)
	e.entryApplied(ctx, c, ledger.OpUpsert, id)
}

func (e *Engine) entryApplied(ctx context.Context, c *collector, op ledger.Op, id string) {
	c.applied(op, id)
	// Replays resolve their own rows by id.
	if e.ledger == nil || !c.queue {
		return
	}
	if _, err := e.ledger.ResolveIdentity(context.WithoutCancel(ctx), id); err != nil {
		e.logger.Warn("could not resolve queued failures", "identity", id, "error", err)
	}
}

func (e *Engine) entryFailed(ctx context.Context, c *collector, op ledger.Op, entry core.Entry, err error) {
	code := core.CodeOf(err)
	e.logger.Warn("entry failed",
		"op", op,
		"identity", entry.ID(),
		"command", entry.Invocation,
		"code", code,
		"error", err,
	)
	e.metrics.entryFailures.WithLabelValues(string(op), string(code)).Inc()
	c.failed(EntryFailure{
		Identity: entry.ID(),
		Command:  entry.Invocation,
		Op:       op,
		Code:     code,
		Message:  reason(err),
	})

	if e.ledger == nil || !c.queue || errors.Is(err, context.Canceled) {
		return
	}
	if _, lerr := e.ledger.RecordFailure(context.WithoutCancel(ctx), op, entry, err); lerr != nil {
		e.logger.Error("could not queue failed entry", "identity", entry.ID(), "error", lerr)
	}
}

// reason is the client-safe message of err.
func reason(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		if cause := ce.Unwrap(); cause != nil {
			return fmt.Sprintf("%s: %v", ce.Message, cause)
		}
		return ce.Message
	}
	return err.Error()
}
