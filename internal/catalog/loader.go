package catalog

import "context"

// LoadTable assembles a full table descriptor from individual catalog reads.
// Row counts are included so downstream planning never re-queries them.
func LoadTable(ctx context.Context, r Reader, schema, table string) (*Table, error) {
	t := &Table{Schema: schema, Name: table}

	cols, err := r.Columns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	t.Columns = cols

	pk, err := r.PrimaryKey(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	t.PrimaryKey = pk

	fks, err := r.ForeignKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	t.ForeignKeys = fks

	idxs, err := r.Indexes(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	t.Indexes = idxs

	count, err := r.RowCount(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	t.RowCount = count

	return t, nil
}

// LoadTables loads descriptors for every base table in the schema.
func LoadTables(ctx context.Context, r Reader, schema string) ([]*Table, error) {
	names, err := r.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	tables := make([]*Table, 0, len(names))
	for _, name := range names {
		t, err := LoadTable(ctx, r, schema, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}
