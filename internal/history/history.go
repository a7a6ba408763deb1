// Package history persists run history in a local SQLite database so
// operators can review past syncs without access to the target database.
// Unlike the audit table, which lives in the target, this store survives
// target recreation.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one sync invocation.
type Run struct {
	ID           string     `json:"id"`
	Mode         string     `json:"mode"`
	SourceSchema string     `json:"source_schema"`
	TargetSchema string     `json:"target_schema"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	Tables       int        `json:"tables"`
	Rows         int64      `json:"rows"`
}

// TableResult is the outcome of one table within a run.
type TableResult struct {
	RunID     string    `json:"run_id"`
	Table     string    `json:"table"`
	Status    string    `json:"status"`
	Rows      int64     `json:"rows"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Seconds   float64   `json:"seconds"`
}

// Store is the SQLite-backed history database.
type Store struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	source_schema TEXT NOT NULL,
	target_schema TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'running',
	error TEXT,
	tables INTEGER NOT NULL DEFAULT 0,
	rows INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS run_tables (
	run_id TEXT NOT NULL REFERENCES runs(id),
	table_name TEXT NOT NULL,
	status TEXT NOT NULL,
	rows INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	started_at TIMESTAMP NOT NULL,
	seconds REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_run_tables_run ON run_tables(run_id);
`

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun registers a new run and returns its id.
func (s *Store) CreateRun(mode, sourceSchema, targetSchema string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, mode, source_schema, target_schema, started_at, status)
		 VALUES (?, ?, ?, ?, ?, 'running')`,
		id, mode, sourceSchema, targetSchema, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("creating run record: %w", err)
	}
	return id, nil
}

// CompleteRun finalizes a run. A nil runErr records success.
func (s *Store) CompleteRun(id string, tables int, rows int64, runErr error) error {
	status := "completed"
	errMsg := ""
	if runErr != nil {
		status = "failed"
		errMsg = runErr.Error()
	}

	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ?, status = ?, error = NULLIF(?, ''), tables = ?, rows = ?
		 WHERE id = ?`,
		time.Now().UTC(), status, errMsg, tables, rows, id)
	if err != nil {
		return fmt.Errorf("completing run record: %w", err)
	}
	return nil
}

// RecordTable stores the outcome of one table within a run.
func (s *Store) RecordTable(r TableResult) error {
	_, err := s.db.Exec(
		`INSERT INTO run_tables (run_id, table_name, status, rows, error, started_at, seconds)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?)`,
		r.RunID, r.Table, r.Status, r.Rows, r.Error, r.StartedAt.UTC(), r.Seconds)
	if err != nil {
		return fmt.Errorf("recording table result for %s: %w", r.Table, err)
	}
	return nil
}

// Runs returns recent runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, mode, source_schema, target_schema, started_at, completed_at,
		        status, COALESCE(error, ''), tables, rows
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Mode, &r.SourceSchema, &r.TargetSchema,
			&r.StartedAt, &r.CompletedAt, &r.Status, &r.Error, &r.Tables, &r.Rows); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunTables returns the table outcomes for one run in insertion order.
func (s *Store) RunTables(runID string) ([]TableResult, error) {
	rows, err := s.db.Query(
		`SELECT run_id, table_name, status, rows, COALESCE(error, ''), started_at, seconds
		 FROM run_tables WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading run tables: %w", err)
	}
	defer rows.Close()

	var results []TableResult
	for rows.Next() {
		var r TableResult
		if err := rows.Scan(&r.RunID, &r.Table, &r.Status, &r.Rows, &r.Error,
			&r.StartedAt, &r.Seconds); err != nil {
			return nil, fmt.Errorf("scanning run table: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
