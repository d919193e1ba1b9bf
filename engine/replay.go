package engine

import (
	"context"
	"errors"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/ledger"
	"github.com/synoet/spellbook/reconcile"
)

// ErrNoLedger is returned by Replay when the engine has no ledger.
var ErrNoLedger = errors.New("engine: no ledger configured")

// Replay retries up to limit queued failures, oldest first. Only the newest
// queued operation per identity is applied; older rows for that identity are
// resolved once it lands. Rows that succeed are resolved one by one and the
// rest have their attempt count bumped.
func (e *Engine) Replay(ctx context.Context, limit int) (*Report, error) {
	if e.ledger == nil {
		return nil, ErrNoLedger
	}
	pending, err := e.ledger.PendingFailures(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return &Report{}, nil
	}

	latest := make(map[string]ledger.Failure, len(pending))
	for _, f := range pending {
		if cur, ok := latest[f.Identity]; !ok || f.ID > cur.ID {
			latest[f.Identity] = f
		}
	}
	cs := &reconcile.ChangeSet{}
	for _, f := range pending {
		if latest[f.Identity].ID != f.ID {
			continue
		}
		switch f.Op {
		case ledger.OpDelete:
			cs.Remove = append(cs.Remove, f.Entry)
		case ledger.OpUpsert:
			cs.Add = append(cs.Add, f.Entry)
		}
	}
	e.logger.Info("replaying queued failures", "count", len(pending), "identities", len(latest))

	c, applyErr := e.apply(ctx, cs, false)

	failures := make(map[string]EntryFailure)
	for _, f := range append(append([]EntryFailure(nil), c.report.EmbeddingFailures...), c.report.IndexFailures...) {
		failures[f.Identity+"/"+string(f.Op)] = f
	}

	lctx := context.WithoutCancel(ctx)
	for _, row := range pending {
		head := latest[row.Identity]
		if c.done(head.Op, head.Identity) {
			if err := e.ledger.ResolveFailure(lctx, row.ID); err != nil && !errors.Is(err, ledger.ErrNotFound) {
				e.logger.Warn("could not resolve failure", "id", row.ID, "error", err)
			}
			continue
		}
		if row.ID != head.ID {
			continue
		}
		f, ok := failures[row.Identity+"/"+string(row.Op)]
		if !ok {
			// Never scheduled, e.g. ctx was cancelled.
			continue
		}
		if err := e.ledger.BumpFailure(lctx, row.ID, core.NewError(f.Code, f.Message, nil)); err != nil {
			e.logger.Warn("could not bump failure", "id", row.ID, "error", err)
		}
	}
	return c.report, applyErr
}
