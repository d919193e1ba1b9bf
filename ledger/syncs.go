package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/synoet/spellbook/core"
)

// Status is the state of a sync run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Sync is one reconciliation run.
type Sync struct {
	ID         int64     `json:"id"`
	Repo       string    `json:"repo"`
	Before     string    `json:"before"`
	After      string    `json:"after"`
	Status     Status    `json:"status"`
	Deleted    int       `json:"deleted"`
	Upserted   int       `json:"upserted"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Outcome is what FinishSync records.
type Outcome struct {
	Deleted  int
	Upserted int
	Failed   int
	Skipped  int
	Err      error
}

// BeginSync records a running sync and returns its id.
func (l *Ledger) BeginSync(ctx context.Context, rev core.Revision) (int64, error) {
	res, err := l.conn.ExecContext(ctx,
		`INSERT INTO syncs (repo, before_rev, after_rev, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		rev.RepoURL, rev.Before, rev.After, StatusRunning, l.stamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert sync: %w", err)
	}
	return res.LastInsertId()
}

// FinishSync stores the outcome. A non-nil Outcome.Err marks the sync failed.
func (l *Ledger) FinishSync(ctx context.Context, id int64, out Outcome) error {
	status, msg := StatusSucceeded, ""
	if out.Err != nil {
		status, msg = StatusFailed, out.Err.Error()
	}
	res, err := l.conn.ExecContext(ctx,
		`UPDATE syncs SET status = ?, deleted = ?, upserted = ?, failed = ?, skipped = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		status, out.Deleted, out.Upserted, out.Failed, out.Skipped, msg, l.stamp(), id,
	)
	if err != nil {
		return fmt.Errorf("update sync %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const syncColumns = `id, repo, before_rev, after_rev, status, deleted, upserted, failed, skipped, error, started_at, finished_at`

// LastSync returns the most recent sync of repo, or of any repository when repo is empty.
func (l *Ledger) LastSync(ctx context.Context, repo string) (*Sync, error) {
	var row *sql.Row
	if repo == "" {
		row = l.conn.QueryRowContext(ctx, `SELECT `+syncColumns+` FROM syncs ORDER BY id DESC LIMIT 1`)
	} else {
		row = l.conn.QueryRowContext(ctx, `SELECT `+syncColumns+` FROM syncs WHERE repo = ? ORDER BY id DESC LIMIT 1`, repo)
	}
	s, err := scanSync(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query last sync: %w", err)
	}
	return s, nil
}

// RecentSyncs returns up to limit syncs, newest first.
func (l *Ledger) RecentSyncs(ctx context.Context, limit int) ([]Sync, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.conn.QueryContext(ctx, `SELECT `+syncColumns+` FROM syncs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query syncs: %w", err)
	}
	defer rows.Close()

	var syncs []Sync
	for rows.Next() {
		s, err := scanSync(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync: %w", err)
		}
		syncs = append(syncs, *s)
	}
	return syncs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSync(sc scanner) (*Sync, error) {
	var (
		s        Sync
		started  int64
		finished sql.NullInt64
	)
	err := sc.Scan(&s.ID, &s.Repo, &s.Before, &s.After, &s.Status,
		&s.Deleted, &s.Upserted, &s.Failed, &s.Skipped, &s.Error, &started, &finished)
	if err != nil {
		return nil, err
	}
	s.StartedAt = time.UnixMilli(started).UTC()
	s.FinishedAt = fromMillis(finished)
	return &s, nil
}
