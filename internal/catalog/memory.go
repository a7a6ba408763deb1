package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// errNotFound marks reads against tables the catalog does not hold.
var errNotFound = errors.New("table not found")

// Memory is an in-memory Catalog. It backs tests and offline planning runs
// where no live database is available. Writer calls record their effect
// rather than interpreting SQL: ExecDDL appends to the statement log, and
// InsertRows materializes rows under the named table, creating it on first
// use.
type Memory struct {
	mu      sync.Mutex
	schemas map[string]*memSchema

	// DDL holds every statement passed to ExecDDL and CreateIndex, in
	// execution order.
	DDL []string
}

type memSchema struct {
	tables map[string]*memTable
	enums  map[string][]string
}

type memTable struct {
	table *Table
	rows  []Row
}

// NewMemory returns an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{schemas: map[string]*memSchema{}}
}

func (m *Memory) schema(name string) *memSchema {
	s, ok := m.schemas[name]
	if !ok {
		s = &memSchema{tables: map[string]*memTable{}, enums: map[string][]string{}}
		m.schemas[name] = s
	}
	return s
}

// AddTable registers a table descriptor and its rows.
func (m *Memory) AddTable(t *Table, rows []Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	cp.RowCount = int64(len(rows))
	m.schema(t.Schema).tables[t.Name] = &memTable{table: &cp, rows: rows}
}

// AddEnum registers an enumerated type in the schema.
func (m *Memory) AddEnum(schema, name string, values []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schema(schema).enums[name] = values
}

// Rows returns the stored rows for a table, or nil when absent.
func (m *Memory) Rows(schema, table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.schema(schema).tables[table]; ok {
		return t.rows
	}
	return nil
}

func (m *Memory) ListTables(ctx context.Context, schema string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.schema(schema).tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Columns(ctx context.Context, schema, table string) ([]Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.schema(schema).tables[table]
	if !ok {
		return nil, readErr(schema, table, "columns", errNotFound)
	}
	return t.table.Columns, nil
}

func (m *Memory) PrimaryKey(ctx context.Context, schema, table string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.schema(schema).tables[table]; ok {
		return t.table.PrimaryKey, nil
	}
	return "", nil
}

func (m *Memory) ForeignKeys(ctx context.Context, schema, table string) ([]ForeignKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.schema(schema).tables[table]; ok {
		return t.table.ForeignKeys, nil
	}
	return nil, nil
}

func (m *Memory) Indexes(ctx context.Context, schema, table string) ([]Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.schema(schema).tables[table]; ok {
		return t.table.Indexes, nil
	}
	return nil, nil
}

func (m *Memory) EnumTypes(ctx context.Context, schema string) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string)
	for name, values := range m.schema(schema).enums {
		out[name] = values
	}
	return out, nil
}

func (m *Memory) RowCount(ctx context.Context, schema, table string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.schema(schema).tables[table]; ok {
		return int64(len(t.rows)), nil
	}
	return 0, nil
}

func (m *Memory) TableExists(ctx context.Context, schema, table string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.schema(schema).tables[table]
	return ok, nil
}

func (m *Memory) FetchRows(ctx context.Context, schema, table string, columns []string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.schema(schema).tables[table]
	if !ok {
		return nil, readErr(schema, table, "fetch", errNotFound)
	}
	out := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		sub := make(Row, len(columns))
		for _, c := range columns {
			sub[c] = r[c]
		}
		out = append(out, sub)
	}
	return out, nil
}

func (m *Memory) EnsureSchema(ctx context.Context, schema string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schema(schema)
	return nil
}

func (m *Memory) ExecDDL(ctx context.Context, statements []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DDL = append(m.DDL, statements...)
	return nil
}

func (m *Memory) InsertRows(ctx context.Context, schema, table string, columns []string, rows []Row, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.schema(schema)
	t, ok := s.tables[table]
	if !ok {
		t = &memTable{table: &Table{Schema: schema, Name: table}}
		s.tables[table] = t
	}
	for _, r := range rows {
		sub := make(Row, len(columns))
		for _, c := range columns {
			sub[c] = r[c]
		}
		t.rows = append(t.rows, sub)
	}
	t.table.RowCount = int64(len(t.rows))
	return int64(len(rows)), nil
}

func (m *Memory) CreateIndex(ctx context.Context, definition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DDL = append(m.DDL, definition)
	return nil
}

func (m *Memory) Close() {}
