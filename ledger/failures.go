package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/synoet/spellbook/core"
)

// Op is the index operation that failed.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Failure is a queued entry whose index operation did not complete.
type Failure struct {
	ID        int64          `json:"id"`
	Identity  string         `json:"identity"`
	Op        Op             `json:"op"`
	Entry     core.Entry     `json:"entry"`
	Code      core.ErrorCode `json:"code"`
	Message   string         `json:"message"`
	Attempts  int            `json:"attempts"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RecordFailure queues entry for replay. A pending failure for the same
// identity and op is updated in place rather than duplicated, and a pending
// failure of the other op is resolved: the latest intent for an identity is
// the only one worth replaying.
func (l *Ledger) RecordFailure(ctx context.Context, op Op, entry core.Entry, cause error) (int64, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("marshal entry: %w", err)
	}
	code := core.CodeOf(cause)
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	now := l.stamp()
	identity := entry.ID()

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM failures WHERE identity = ? AND op = ? AND resolved = 0 ORDER BY id LIMIT 1`,
		identity, op,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO failures (identity, op, entry, code, message, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			identity, op, string(payload), code, msg, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert failure: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, fmt.Errorf("query failure: %w", err)
	default:
		_, err := tx.ExecContext(ctx,
			`UPDATE failures SET entry = ?, code = ?, message = ?, attempts = attempts + 1, updated_at = ? WHERE id = ?`,
			string(payload), code, msg, now, id,
		)
		if err != nil {
			return 0, fmt.Errorf("update failure %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE failures SET resolved = 1, updated_at = ? WHERE identity = ? AND op != ? AND resolved = 0`,
		now, identity, op,
	); err != nil {
		return 0, fmt.Errorf("supersede failures of %s: %w", identity, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	l.logger.Debug("queued failure", "id", id, "identity", identity, "op", op, "code", code)
	return id, nil
}

// PendingFailures returns up to limit unresolved failures, oldest first.
func (l *Ledger) PendingFailures(ctx context.Context, limit int) ([]Failure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.conn.QueryContext(ctx,
		`SELECT id, identity, op, entry, code, message, attempts, created_at, updated_at
		 FROM failures WHERE resolved = 0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var (
			f                Failure
			entry            string
			created, updated int64
		)
		if err := rows.Scan(&f.ID, &f.Identity, &f.Op, &entry, &f.Code, &f.Message, &f.Attempts, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		if err := json.Unmarshal([]byte(entry), &f.Entry); err != nil {
			return nil, fmt.Errorf("decode failure %d entry: %w", f.ID, err)
		}
		f.CreatedAt = time.UnixMilli(created).UTC()
		f.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

// ResolveFailure marks one failure as done.
func (l *Ledger) ResolveFailure(ctx context.Context, id int64) error {
	res, err := l.conn.ExecContext(ctx,
		`UPDATE failures SET resolved = 1, updated_at = ? WHERE id = ? AND resolved = 0`, l.stamp(), id)
	if err != nil {
		return fmt.Errorf("resolve failure %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveIdentity marks every pending failure of identity as done, since a
// later successful operation on the same record supersedes them.
func (l *Ledger) ResolveIdentity(ctx context.Context, identity string) (int64, error) {
	res, err := l.conn.ExecContext(ctx,
		`UPDATE failures SET resolved = 1, updated_at = ? WHERE identity = ? AND resolved = 0`, l.stamp(), identity)
	if err != nil {
		return 0, fmt.Errorf("resolve identity %s: %w", identity, err)
	}
	return res.RowsAffected()
}

// BumpFailure records another failed attempt.
func (l *Ledger) BumpFailure(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := l.conn.ExecContext(ctx,
		`UPDATE failures SET attempts = attempts + 1, code = ?, message = ?, updated_at = ? WHERE id = ? AND resolved = 0`,
		core.CodeOf(cause), msg, l.stamp(), id)
	if err != nil {
		return fmt.Errorf("bump failure %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPending returns the number of unresolved failures.
func (l *Ledger) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := l.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM failures WHERE resolved = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}
