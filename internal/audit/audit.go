// Package audit maintains the _migration_metadata table in the target
// schema: one row per (table, run), with timestamps, row counts, and status.
// Bookkeeping only; nothing in the planning core reads it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pgsync/internal/logging"
)

// tableName is created inside the target schema, underscore-prefixed to
// stay out of the way of migrated tables.
const tableName = "_migration_metadata"

// DB is the subset of pgxpool.Pool the tracker needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Entry is one audit record.
type Entry struct {
	ID            int64          `json:"id"`
	TableName     string         `json:"table_name"`
	SourceDB      string         `json:"source_db"`
	SourceHost    string         `json:"source_host"`
	MigrationType string         `json:"migration_type"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	RowsMigrated  int64          `json:"rows_migrated"`
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	TargetSchema  string         `json:"target_schema"`
}

// Tracker records migration runs in the target database.
type Tracker struct {
	db         DB
	schema     string
	sourceDB   string
	sourceHost string
}

// NewTracker creates the tracking table if needed and returns a tracker
// bound to the target schema.
func NewTracker(ctx context.Context, db DB, schema, sourceDB, sourceHost string) (*Tracker, error) {
	t := &Tracker{db: db, schema: schema, sourceDB: sourceDB, sourceHost: sourceHost}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
		id BIGSERIAL PRIMARY KEY,
		table_name VARCHAR(255) NOT NULL,
		source_db VARCHAR(255) NOT NULL,
		source_host VARCHAR(255),
		migration_type VARCHAR(50) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		rows_migrated BIGINT,
		status VARCHAR(50) NOT NULL,
		error_message TEXT,
		metadata JSONB,
		target_schema VARCHAR(255),
		UNIQUE(table_name, source_db, started_at)
	)`, schema, tableName)

	if _, err := db.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return nil, fmt.Errorf("ensuring audit schema: %w", err)
	}
	if _, err := db.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("creating audit table: %w", err)
	}
	return t, nil
}

// Begin records the start of a table migration and returns the entry id.
func (t *Tracker) Begin(ctx context.Context, table, migrationType string, metadata map[string]any) (int64, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		meta = []byte("{}")
	}

	sql := fmt.Sprintf(`INSERT INTO %s.%s
		(table_name, source_db, source_host, migration_type, started_at, status, metadata, target_schema)
		VALUES ($1, $2, $3, $4, $5, 'in_progress', $6, $7)
		RETURNING id`, t.schema, tableName)

	var id int64
	err = t.db.QueryRow(ctx, sql,
		table, t.sourceDB, t.sourceHost, migrationType, time.Now(), meta, t.schema).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("recording migration start for %s: %w", table, err)
	}
	logging.Info("started migration tracking for %s (id %d)", table, id)
	return id, nil
}

// Complete marks an entry finished. A nil runErr records success; otherwise
// the entry is marked failed with the error message.
func (t *Tracker) Complete(ctx context.Context, id, rowsMigrated int64, runErr error) error {
	status := "completed"
	errMsg := ""
	if runErr != nil {
		status = "failed"
		errMsg = runErr.Error()
	}

	sql := fmt.Sprintf(`UPDATE %s.%s
		SET completed_at = $1, rows_migrated = $2, status = $3, error_message = NULLIF($4, '')
		WHERE id = $5`, t.schema, tableName)

	if _, err := t.db.Exec(ctx, sql, time.Now(), rowsMigrated, status, errMsg, id); err != nil {
		return fmt.Errorf("completing audit entry %d: %w", id, err)
	}
	logging.Info("migration %d marked as %s", id, status)
	return nil
}

// LastCompleted returns the most recent completed entry for a table, or nil
// when the table has never completed a run from this source.
func (t *Tracker) LastCompleted(ctx context.Context, table string) (*Entry, error) {
	sql := fmt.Sprintf(`SELECT id, table_name, source_db, source_host, migration_type,
			started_at, completed_at, COALESCE(rows_migrated, 0),
			status, COALESCE(error_message, ''), COALESCE(target_schema, '')
		FROM %s.%s
		WHERE table_name = $1 AND source_db = $2 AND status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1`, t.schema, tableName)

	e, err := scanEntry(t.db.QueryRow(ctx, sql, table, t.sourceDB))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last migration for %s: %w", table, err)
	}
	return e, nil
}

// History returns recent entries, newest first. An empty table name returns
// entries for every table.
func (t *Tracker) History(ctx context.Context, table string, limit int) ([]Entry, error) {
	sql := fmt.Sprintf(`SELECT id, table_name, source_db, source_host, migration_type,
			started_at, completed_at, COALESCE(rows_migrated, 0),
			status, COALESCE(error_message, ''), COALESCE(target_schema, '')
		FROM %s.%s
		WHERE ($1 = '' OR table_name = $1)
		ORDER BY started_at DESC
		LIMIT $2`, t.schema, tableName)

	rows, err := t.db.Query(ctx, sql, table, limit)
	if err != nil {
		return nil, fmt.Errorf("reading migration history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning migration history: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ShouldIncrementalSync reports whether the table has a completed run from
// the same source host, making an incremental sync meaningful.
func (t *Tracker) ShouldIncrementalSync(ctx context.Context, table string) (bool, error) {
	last, err := t.LastCompleted(ctx, table)
	if err != nil {
		return false, err
	}
	return last != nil && last.SourceHost == t.sourceHost, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.TableName, &e.SourceDB, &e.SourceHost, &e.MigrationType,
		&e.StartedAt, &e.CompletedAt, &e.RowsMigrated, &e.Status, &e.ErrorMessage, &e.TargetSchema)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
