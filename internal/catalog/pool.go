package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pgsync/internal/logging"
)

// Pool implements Catalog against a PostgreSQL database through a pgx
// connection pool.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool opens a connection pool for the given DSN and verifies it with a
// ping.
func NewPool(ctx context.Context, dsn string, maxConns int) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}

	cfg.MaxConns = int32(maxConns)
	if maxConns >= 4 {
		cfg.MinConns = int32(maxConns / 4)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB exposes the underlying pgx pool for callers that need raw queries
// beyond the Catalog interface, such as the audit tracker.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}

// quoteIdent double-quotes an identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ListTables returns base table names in the schema, sorted by name.
func (p *Pool) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := p.pool.Query(ctx, q, schema)
	if err != nil {
		return nil, readErr(schema, "", "list tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, readErr(schema, "", "list tables", err)
		}
		tables = append(tables, name)
	}
	return tables, readErr(schema, "", "list tables", rows.Err())
}

// Columns returns column metadata ordered by ordinal position.
func (p *Pool) Columns(ctx context.Context, schema, table string) ([]Column, error) {
	const q = `
		SELECT column_name, data_type, is_nullable, column_default,
		       character_maximum_length, numeric_precision, numeric_scale,
		       udt_name, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := p.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, readErr(schema, table, "describe columns", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			c        Column
			nullable string
			def      *string
			maxLen   *int
			prec     *int
			scale    *int
		)
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &def,
			&maxLen, &prec, &scale, &c.UDTName, &c.Ordinal); err != nil {
			return nil, readErr(schema, table, "describe columns", err)
		}
		c.Nullable = nullable == "YES"
		if def != nil {
			c.Default = *def
		}
		if maxLen != nil {
			c.MaxLength = *maxLen
		}
		if prec != nil {
			c.Precision = *prec
		}
		if scale != nil {
			c.Scale = *scale
			c.HasScale = true
		}
		cols = append(cols, c)
	}
	return cols, readErr(schema, table, "describe columns", rows.Err())
}

// PrimaryKey returns the primary key column name, or "" when the table has
// no primary key.
func (p *Pool) PrimaryKey(ctx context.Context, schema, table string) (string, error) {
	const q = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		LIMIT 1`

	var pk string
	err := p.pool.QueryRow(ctx, q, schema, table).Scan(&pk)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", readErr(schema, table, "primary key", err)
	}
	return pk, nil
}

// ForeignKeys returns the table's foreign key constraint edges.
func (p *Pool) ForeignKeys(ctx context.Context, schema, table string) ([]ForeignKey, error) {
	const q = `
		SELECT tc.constraint_name, kcu.column_name,
		       ccu.table_name AS foreign_table_name,
		       ccu.column_name AS foreign_column_name
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
		  ON ccu.constraint_name = tc.constraint_name
		  AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2`

	rows, err := p.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, readErr(schema, table, "foreign keys", err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Constraint, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, readErr(schema, table, "foreign keys", err)
		}
		fks = append(fks, fk)
	}
	return fks, readErr(schema, table, "foreign keys", rows.Err())
}

// Indexes returns non-PK indexes with their definitions.
func (p *Pool) Indexes(ctx context.Context, schema, table string) ([]Index, error) {
	const q = `
		SELECT indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = $1
		  AND tablename = $2
		  AND indexname NOT LIKE '%_pkey'`

	rows, err := p.pool.Query(ctx, q, schema, table)
	if err != nil {
		return nil, readErr(schema, table, "indexes", err)
	}
	defer rows.Close()

	var idxs []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.Name, &idx.Definition); err != nil {
			return nil, readErr(schema, table, "indexes", err)
		}
		idxs = append(idxs, idx)
	}
	return idxs, readErr(schema, table, "indexes", rows.Err())
}

// EnumTypes returns all enumerated types in the schema with their labels in
// sort order.
func (p *Pool) EnumTypes(ctx context.Context, schema string) (map[string][]string, error) {
	const q = `
		SELECT t.typname, array_agg(e.enumlabel ORDER BY e.enumsortorder)
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		GROUP BY t.typname`

	rows, err := p.pool.Query(ctx, q, schema)
	if err != nil {
		return nil, readErr(schema, "", "enum types", err)
	}
	defer rows.Close()

	enums := make(map[string][]string)
	for rows.Next() {
		var name string
		var values []string
		if err := rows.Scan(&name, &values); err != nil {
			return nil, readErr(schema, "", "enum types", err)
		}
		enums[name] = values
	}
	return enums, readErr(schema, "", "enum types", rows.Err())
}

// RowCount returns the table's row count. A table that cannot be counted
// (typically because it does not exist yet) counts as zero.
func (p *Pool) RowCount(ctx context.Context, schema, table string) (int64, error) {
	var count int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", quoteIdent(schema), quoteIdent(table))
	if err := p.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		logging.Debug("could not count rows for %s.%s: %v", schema, table, err)
		return 0, nil
	}
	return count, nil
}

// TableExists reports whether the table exists in the schema.
func (p *Pool) TableExists(ctx context.Context, schema, table string) (bool, error) {
	const q = `
		SELECT 1
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2`

	var one int
	err := p.pool.QueryRow(ctx, q, schema, table).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, readErr(schema, table, "exists", err)
	}
	return true, nil
}

// FetchRows returns all rows restricted to the given ordered column subset.
func (p *Pool) FetchRows(ctx context.Context, schema, table string, columns []string) ([]Row, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s.%s",
		strings.Join(quoted, ", "), quoteIdent(schema), quoteIdent(table))

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, readErr(schema, table, "fetch rows", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, readErr(schema, table, "fetch rows", err)
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}
		result = append(result, row)
	}
	return result, readErr(schema, table, "fetch rows", rows.Err())
}

// EnsureSchema creates the schema if it does not exist.
func (p *Pool) EnsureSchema(ctx context.Context, schema string) error {
	_, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema))
	if err != nil {
		return fmt.Errorf("ensuring schema %s: %w", schema, err)
	}
	return nil
}

// ExecDDL executes the statements inside a single transaction so that a
// rejected statement leaves nothing behind.
func (p *Pool) ExecDDL(ctx context.Context, statements []string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning ddl transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing ddl: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// InsertRows inserts rows in batches, one transaction per batch. A failing
// batch rolls back whole; batches already committed stay committed.
func (p *Pool) InsertRows(ctx context.Context, schema, table string, columns []string, rows []Row, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		quoteIdent(schema), quoteIdent(table),
		strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	var inserted int64
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		if err := p.insertBatch(ctx, stmt, columns, rows[start:end]); err != nil {
			return inserted, err
		}
		inserted += int64(end - start)
	}
	return inserted, nil
}

func (p *Pool) insertBatch(ctx context.Context, stmt string, columns []string, rows []Row) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range rows {
		args := make([]any, len(columns))
		for i, c := range columns {
			args[i] = row[c]
		}
		batch.Queue(stmt, args...)
	}

	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("inserting batch: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}
	return tx.Commit(ctx)
}

// CreateIndex executes a single index definition statement.
func (p *Pool) CreateIndex(ctx context.Context, definition string) error {
	_, err := p.pool.Exec(ctx, definition)
	return err
}
