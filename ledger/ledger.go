// Package ledger records sync runs and queues index failures for replay.
package ledger

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a sync or failure row does not exist.
var ErrNotFound = errors.New("not found")

// Ledger is a SQLite-backed store of sync history and pending failures.
type Ledger struct {
	conn   *sql.DB
	logger *slog.Logger
	path   string
	now    func() time.Time
}

// Open opens or creates the ledger database at path.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent syncs.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}

	logger.Debug("opened ledger", "path", path)
	return &Ledger{
		conn:   conn,
		logger: logger.With("component", "ledger"),
		path:   path,
		now:    time.Now,
	}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// Path returns the database file.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) stamp() int64 {
	return l.now().UnixMilli()
}

func fromMillis(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return time.UnixMilli(ms.Int64).UTC()
}
