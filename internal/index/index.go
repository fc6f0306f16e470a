// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index keeps the pipeline's SQLite database: the cache manifest
// that marks artifacts complete, and the run ledger that records each
// paper's stage results.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-digest/internal/cache"
	"github.com/pdiddy/paper-digest/pkg/types"
)

const dbFile = "index.db"

// DB wraps the index database. It implements cache.Manifest.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ cache.Manifest = (*DB)(nil)

// Open opens or creates dir/index.db and ensures the schema exists.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Workers share one connection; sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)

	d := &DB{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return d, nil
}

// Close releases the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			sha256 TEXT NOT NULL,
			written_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_date ON runs(date)`,
		`CREATE TABLE IF NOT EXISTS paper_status (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seq INTEGER NOT NULL,
			arxiv_id TEXT NOT NULL,
			status TEXT NOT NULL,
			source TEXT,
			stages TEXT NOT NULL,
			PRIMARY KEY (run_id, arxiv_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Lookup returns the manifest entry for key.
func (d *DB) Lookup(ctx context.Context, key string) (cache.Entry, bool, error) {
	var (
		e         cache.Entry
		writtenAt string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT size, sha256, written_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&e.Size, &e.SHA256, &writtenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("querying cache entry: %w", err)
	}
	e.WrittenAt, _ = time.Parse(time.RFC3339Nano, writtenAt)
	return e, true, nil
}

// Record inserts or replaces the manifest entry for key.
func (d *DB) Record(ctx context.Context, key string, e cache.Entry) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, size, sha256, written_at) VALUES (?, ?, ?, ?)`,
		key, e.Size, e.SHA256, e.WrittenAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording cache entry: %w", err)
	}
	return nil
}

// Forget deletes the manifest entry for key.
func (d *DB) Forget(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// StartRun opens a ledger run for date and returns its report skeleton.
func (d *DB) StartRun(ctx context.Context, date string) (types.RunReport, error) {
	r := types.RunReport{
		RunID:     uuid.NewString(),
		Date:      date,
		StartedAt: d.now(),
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO runs (id, date, started_at) VALUES (?, ?, ?)`,
		r.RunID, r.Date, r.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return types.RunReport{}, fmt.Errorf("inserting run: %w", err)
	}
	return r, nil
}

// RecordPaper stores one paper's status under runID. seq preserves listing order.
func (d *DB) RecordPaper(ctx context.Context, runID string, seq int, p types.PaperReport) error {
	stages, err := json.Marshal(p.Stages)
	if err != nil {
		return fmt.Errorf("encoding stages: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO paper_status (run_id, seq, arxiv_id, status, source, stages)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, seq, p.ArxivID, string(p.Status), string(p.Source), string(stages),
	)
	if err != nil {
		return fmt.Errorf("recording paper %s: %w", p.ArxivID, err)
	}
	return nil
}

// FinishRun stamps the run's finish time.
func (d *DB) FinishRun(ctx context.Context, runID string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		d.now().Format(time.RFC3339Nano), runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run for date, or for any
// date when date is empty. It returns nil when no run exists.
func (d *DB) LatestRun(ctx context.Context, date string) (*types.RunReport, error) {
	query := `SELECT id, date, started_at, COALESCE(finished_at, '') FROM runs`
	var args []any
	if date != "" {
		query += ` WHERE date = ?`
		args = append(args, date)
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	var (
		r                   types.RunReport
		started, finishedAt string
	)
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&r.RunID, &r.Date, &started, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finishedAt != "" {
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT arxiv_id, status, COALESCE(source, ''), stages FROM paper_status
		 WHERE run_id = ? ORDER BY seq`, r.RunID)
	if err != nil {
		return nil, fmt.Errorf("querying paper status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p              types.PaperReport
			status, source string
			stages         string
		)
		if err := rows.Scan(&p.ArxivID, &status, &source, &stages); err != nil {
			return nil, fmt.Errorf("scanning paper status: %w", err)
		}
		p.Status = types.PaperStatus(status)
		p.Source = types.SourceKind(source)
		if err := json.Unmarshal([]byte(stages), &p.Stages); err != nil {
			return nil, fmt.Errorf("decoding stages for %s: %w", p.ArxivID, err)
		}
		r.Papers = append(r.Papers, p)
	}
	return &r, rows.Err()
}
