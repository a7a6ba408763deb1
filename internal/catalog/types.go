// Package catalog reads and writes PostgreSQL catalog metadata and table
// data. Descriptors are rebuilt from the database on every run; nothing in
// this package is cached across invocations.
package catalog

import "fmt"

// Column describes one column as reported by information_schema.
type Column struct {
	Name      string `json:"name"`
	DataType  string `json:"data_type"`
	UDTName   string `json:"udt_name"`
	Nullable  bool   `json:"nullable"`
	Default   string `json:"default"` // raw default expression, empty if none
	MaxLength int    `json:"max_length"`
	Precision int    `json:"precision"`
	Scale     int    `json:"scale"`
	HasScale  bool   `json:"has_scale"` // numeric_scale was non-null
	Ordinal   int    `json:"ordinal"`
}

// IsUserDefined reports whether the column's declared type is a user-defined
// (enumerated) type that must be redirected to the target schema.
func (c *Column) IsUserDefined() bool {
	return c.DataType == "USER-DEFINED"
}

// ForeignKey is one foreign key constraint edge.
type ForeignKey struct {
	Constraint string `json:"constraint"`
	Column     string `json:"column"`
	RefTable   string `json:"ref_table"`
	RefColumn  string `json:"ref_column"`
}

// Index is a named index with its full definition statement.
type Index struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// Table describes a source or destination table for a single run.
type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  string       `json:"primary_key"` // empty if none
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	Indexes     []Index      `json:"indexes"`
	RowCount    int64        `json:"row_count"`
}

// FullName returns schema.table format.
func (t *Table) FullName() string {
	return t.Schema + "." + t.Name
}

// HasPK returns true if the table has a primary key.
func (t *Table) HasPK() bool {
	return t.PrimaryKey != ""
}

// ColumnNames returns the ordered column names.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or nil if the table has no such column.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Row is a single table row keyed by column name. Values carry whatever the
// driver produced; canonicalization happens in the fingerprint package.
type Row map[string]any

// ReadError wraps a catalog read failure with enough context for the caller
// to log and decide on retry.
type ReadError struct {
	Schema string
	Table  string
	Op     string
	Err    error
}

func (e *ReadError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("catalog %s for schema %s: %v", e.Op, e.Schema, e.Err)
	}
	return fmt.Sprintf("catalog %s for %s.%s: %v", e.Op, e.Schema, e.Table, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func readErr(schema, table, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ReadError{Schema: schema, Table: table, Op: op, Err: err}
}
