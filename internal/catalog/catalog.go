package catalog

import "context"

// Reader provides read-only access to a schema's catalog metadata and table
// contents. All methods are pure reads with no side effects.
type Reader interface {
	// ListTables returns base table names in the schema, sorted by name.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// Columns returns column metadata ordered by ordinal position.
	Columns(ctx context.Context, schema, table string) ([]Column, error)

	// PrimaryKey returns the primary key column name, or "" if none.
	PrimaryKey(ctx context.Context, schema, table string) (string, error)

	// ForeignKeys returns the table's foreign key constraint edges.
	ForeignKeys(ctx context.Context, schema, table string) ([]ForeignKey, error)

	// Indexes returns non-PK indexes with their definitions.
	Indexes(ctx context.Context, schema, table string) ([]Index, error)

	// EnumTypes returns all enumerated types in the schema with their
	// labels in sort order.
	EnumTypes(ctx context.Context, schema string) (map[string][]string, error)

	// RowCount returns the table's row count. Missing tables count as 0.
	RowCount(ctx context.Context, schema, table string) (int64, error)

	// TableExists reports whether the table exists in the schema.
	TableExists(ctx context.Context, schema, table string) (bool, error)

	// FetchRows returns all rows restricted to the given column subset.
	FetchRows(ctx context.Context, schema, table string, columns []string) ([]Row, error)
}

// Writer provides the destination-side mutations the sync drivers need.
// DDL batches run inside a single transaction; row batches commit one
// transaction per batch, never per row.
type Writer interface {
	// EnsureSchema creates the schema if it does not exist.
	EnsureSchema(ctx context.Context, schema string) error

	// ExecDDL executes the statements inside one transaction. On error
	// nothing is committed.
	ExecDDL(ctx context.Context, statements []string) error

	// InsertRows inserts rows into schema.table in batches of batchSize.
	// Each batch is one transaction; a failing batch is rolled back whole
	// while previously committed batches remain. Returns rows inserted.
	InsertRows(ctx context.Context, schema, table string, columns []string, rows []Row, batchSize int) (int64, error)

	// CreateIndex executes a single index definition statement.
	CreateIndex(ctx context.Context, definition string) error
}

// Catalog combines reading and writing against one database.
type Catalog interface {
	Reader
	Writer
	Close()
}
