package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Index is a queryable sqlite view over completed runs. The runlog files
// remain the source of truth; the index is updated incrementally as runs
// complete and is not rebuilt from them.
type Index struct {
	db *sql.DB
	mu sync.Mutex
}

// IndexEntry is one row of the runs table.
type IndexEntry struct {
	RunID        string
	SpecialistID string
	ModelName    string
	TerminatedBy string
	StartedAt    time.Time
	EventCount   int
	Summary      string
}

// OpenIndex opens (or creates) the run index database at dbPath.
func OpenIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open run index: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("run index: wal mode: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run index: migrate: %w", err)
	}
	return idx, nil
}

func (i *Index) migrate() error {
	_, err := i.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id        TEXT PRIMARY KEY,
		specialist_id TEXT NOT NULL DEFAULT '',
		model_name    TEXT NOT NULL DEFAULT '',
		terminated_by TEXT NOT NULL DEFAULT '',
		started_at    INTEGER NOT NULL DEFAULT 0,
		event_count   INTEGER NOT NULL DEFAULT 0,
		summary       TEXT NOT NULL DEFAULT ''
	)`)
	return err
}

// Record upserts one run into the index.
func (i *Index) Record(ctx context.Context, e IndexEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, err := i.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, specialist_id, model_name, terminated_by, started_at, event_count, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			specialist_id=excluded.specialist_id,
			model_name=excluded.model_name,
			terminated_by=excluded.terminated_by,
			started_at=excluded.started_at,
			event_count=excluded.event_count,
			summary=excluded.summary`,
		e.RunID, e.SpecialistID, e.ModelName, e.TerminatedBy,
		e.StartedAt.Unix(), e.EventCount, e.Summary,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (i *Index) Recent(ctx context.Context, limit int) ([]IndexEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := i.db.QueryContext(ctx,
		`SELECT run_id, specialist_id, model_name, terminated_by, started_at, event_count, summary
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []IndexEntry
	for rows.Next() {
		var e IndexEntry
		var startedAt int64
		if err := rows.Scan(&e.RunID, &e.SpecialistID, &e.ModelName, &e.TerminatedBy, &startedAt, &e.EventCount, &e.Summary); err != nil {
			return nil, err
		}
		e.StartedAt = time.Unix(startedAt, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (i *Index) Close() error { return i.db.Close() }
