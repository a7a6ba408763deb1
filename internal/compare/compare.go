// Package compare diffs two schemas' structure: which tables are missing on
// either side, and per table which columns were added, removed, or changed
// type.
package compare

import (
	"context"
	"fmt"
	"sort"

	"pgsync/internal/catalog"
)

// ColumnDiff records a column present on both sides with differing types.
type ColumnDiff struct {
	Name       string
	SourceType string
	TargetType string
}

// TableDiff is the structural difference for one table present on both
// sides.
type TableDiff struct {
	Table           string
	AddedColumns    []string
	RemovedColumns  []string
	TypeChanged     []ColumnDiff
	NullableChanged []string
	SourceRows      int64
	TargetRows      int64
}

// InSync reports whether the table's structure matches on both sides. Row
// counts do not participate; they are informational.
func (d *TableDiff) InSync() bool {
	return len(d.AddedColumns) == 0 && len(d.RemovedColumns) == 0 &&
		len(d.TypeChanged) == 0 && len(d.NullableChanged) == 0
}

// SchemaDiff is the full structural comparison of two schemas.
type SchemaDiff struct {
	SourceSchema string
	TargetSchema string

	// MissingTables exist in the source but not the target; ExtraTables
	// the other way around. Same convention for enum types.
	MissingTables []string
	ExtraTables   []string
	MissingEnums  []string
	ExtraEnums    []string

	Tables []TableDiff
}

// InSync reports whether both schemas hold the same tables with the same
// structure.
func (d *SchemaDiff) InSync() bool {
	if len(d.MissingTables) > 0 || len(d.ExtraTables) > 0 {
		return false
	}
	if len(d.MissingEnums) > 0 || len(d.ExtraEnums) > 0 {
		return false
	}
	for i := range d.Tables {
		if !d.Tables[i].InSync() {
			return false
		}
	}
	return true
}

// Tables diffs two descriptors of the same table. Added means present in the
// source only; removed means present in the target only.
func Tables(source, target *catalog.Table) *TableDiff {
	d := &TableDiff{
		Table:      source.Name,
		SourceRows: source.RowCount,
		TargetRows: target.RowCount,
	}

	targetCols := make(map[string]catalog.Column, len(target.Columns))
	for _, c := range target.Columns {
		targetCols[c.Name] = c
	}
	sourceCols := make(map[string]catalog.Column, len(source.Columns))
	for _, c := range source.Columns {
		sourceCols[c.Name] = c
	}

	for _, c := range source.Columns {
		tc, ok := targetCols[c.Name]
		if !ok {
			d.AddedColumns = append(d.AddedColumns, c.Name)
			continue
		}
		if c.DataType != tc.DataType {
			d.TypeChanged = append(d.TypeChanged, ColumnDiff{
				Name:       c.Name,
				SourceType: c.DataType,
				TargetType: tc.DataType,
			})
		}
		if c.Nullable != tc.Nullable {
			d.NullableChanged = append(d.NullableChanged, c.Name)
		}
	}
	for _, c := range target.Columns {
		if _, ok := sourceCols[c.Name]; !ok {
			d.RemovedColumns = append(d.RemovedColumns, c.Name)
		}
	}

	sort.Strings(d.AddedColumns)
	sort.Strings(d.RemovedColumns)
	sort.Strings(d.NullableChanged)
	sort.Slice(d.TypeChanged, func(i, j int) bool {
		return d.TypeChanged[i].Name < d.TypeChanged[j].Name
	})
	return d
}

// Schemas compares every source table against the target schema. Tables
// missing on the target are listed, not diffed.
func Schemas(ctx context.Context, source catalog.Reader, sourceSchema string, target catalog.Reader, targetSchema string) (*SchemaDiff, error) {
	diff := &SchemaDiff{SourceSchema: sourceSchema, TargetSchema: targetSchema}

	sourceNames, err := source.ListTables(ctx, sourceSchema)
	if err != nil {
		return nil, fmt.Errorf("list source tables: %w", err)
	}
	targetNames, err := target.ListTables(ctx, targetSchema)
	if err != nil {
		return nil, fmt.Errorf("list target tables: %w", err)
	}

	targetSet := make(map[string]bool, len(targetNames))
	for _, name := range targetNames {
		targetSet[name] = true
	}
	sourceSet := make(map[string]bool, len(sourceNames))
	for _, name := range sourceNames {
		sourceSet[name] = true
	}

	for _, name := range targetNames {
		if !sourceSet[name] {
			diff.ExtraTables = append(diff.ExtraTables, name)
		}
	}

	sourceEnums, err := source.EnumTypes(ctx, sourceSchema)
	if err != nil {
		return nil, fmt.Errorf("list source enum types: %w", err)
	}
	targetEnums, err := target.EnumTypes(ctx, targetSchema)
	if err != nil {
		return nil, fmt.Errorf("list target enum types: %w", err)
	}
	for name := range sourceEnums {
		if _, ok := targetEnums[name]; !ok {
			diff.MissingEnums = append(diff.MissingEnums, name)
		}
	}
	for name := range targetEnums {
		if _, ok := sourceEnums[name]; !ok {
			diff.ExtraEnums = append(diff.ExtraEnums, name)
		}
	}

	for _, name := range sourceNames {
		if !targetSet[name] {
			diff.MissingTables = append(diff.MissingTables, name)
			continue
		}

		st, err := catalog.LoadTable(ctx, source, sourceSchema, name)
		if err != nil {
			return nil, fmt.Errorf("load source table %s: %w", name, err)
		}
		tt, err := catalog.LoadTable(ctx, target, targetSchema, name)
		if err != nil {
			return nil, fmt.Errorf("load target table %s: %w", name, err)
		}
		diff.Tables = append(diff.Tables, *Tables(st, tt))
	}

	sort.Strings(diff.MissingTables)
	sort.Strings(diff.ExtraTables)
	sort.Strings(diff.MissingEnums)
	sort.Strings(diff.ExtraEnums)
	return diff, nil
}
