// Package journal keeps a local SQLite mirror of reported events so a run
// can be inspected without the remote store. Writes are best-effort; journal
// failures never affect orchestration.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/posthog/taskagent/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    TEXT NOT NULL,
	run_id     TEXT NOT NULL DEFAULT '',
	phase      TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	data       TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_task ON event_log(task_id, id);
`

// Entry is one journaled event.
type Entry struct {
	ID        int64
	TaskID    string
	RunID     string
	Phase     string
	Kind      string
	Data      string
	CreatedAt time.Time
}

// Journal is a SQLite-backed append-only event log.
type Journal struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the journal at path, creating the
// parent directory when missing.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// SQLite requires a single writer per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append records one event.
func (j *Journal) Append(runID string, ev events.Event) error {
	var data []byte
	if ev.Data != nil {
		var err error
		data, err = json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("encode event data: %w", err)
		}
	}
	_, err := j.db.Exec(
		`INSERT INTO event_log (task_id, run_id, phase, kind, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.TaskID, runID, ev.Phase, string(ev.Kind), string(data), ev.Time.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// List returns a task's journaled events in append order, newest last.
// limit <= 0 means no limit.
func (j *Journal) List(taskID string, limit int) ([]Entry, error) {
	query := `SELECT id, task_id, run_id, phase, kind, COALESCE(data, ''), created_at
		FROM event_log WHERE task_id = ? ORDER BY id`
	args := []any{taskID}
	if limit > 0 {
		query += ` DESC LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.RunID, &e.Phase, &e.Kind, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The limited query walks newest-first; restore append order.
	if limit > 0 {
		for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
			entries[i], entries[k] = entries[k], entries[i]
		}
	}
	return entries, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
