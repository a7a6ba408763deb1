package compare

import (
	"context"
	"testing"

	"pgsync/internal/catalog"
)

func TestTables(t *testing.T) {
	source := &catalog.Table{
		Name:     "users",
		RowCount: 10,
		Columns: []catalog.Column{
			{Name: "id", DataType: "integer"},
			{Name: "name", DataType: "character varying"},
			{Name: "age", DataType: "integer"},
		},
	}
	target := &catalog.Table{
		Name:     "users",
		RowCount: 8,
		Columns: []catalog.Column{
			{Name: "id", DataType: "bigint"},
			{Name: "name", DataType: "character varying"},
			{Name: "legacy_flag", DataType: "boolean"},
		},
	}

	d := Tables(source, target)

	if d.InSync() {
		t.Fatal("diff must not report in sync")
	}
	if len(d.AddedColumns) != 1 || d.AddedColumns[0] != "age" {
		t.Errorf("added = %v, want [age]", d.AddedColumns)
	}
	if len(d.RemovedColumns) != 1 || d.RemovedColumns[0] != "legacy_flag" {
		t.Errorf("removed = %v, want [legacy_flag]", d.RemovedColumns)
	}
	if len(d.TypeChanged) != 1 || d.TypeChanged[0].Name != "id" {
		t.Fatalf("type changed = %v, want id", d.TypeChanged)
	}
	if d.TypeChanged[0].SourceType != "integer" || d.TypeChanged[0].TargetType != "bigint" {
		t.Errorf("type change = %+v, want integer -> bigint", d.TypeChanged[0])
	}
	if d.SourceRows != 10 || d.TargetRows != 8 {
		t.Errorf("row counts = %d/%d, want 10/8", d.SourceRows, d.TargetRows)
	}
}

func TestTablesNullableChange(t *testing.T) {
	source := &catalog.Table{
		Name: "users",
		Columns: []catalog.Column{
			{Name: "id", DataType: "integer"},
			{Name: "email", DataType: "text", Nullable: false},
		},
	}
	target := &catalog.Table{
		Name: "users",
		Columns: []catalog.Column{
			{Name: "id", DataType: "integer"},
			{Name: "email", DataType: "text", Nullable: true},
		},
	}

	d := Tables(source, target)

	if d.InSync() {
		t.Fatal("nullability drift must not report in sync")
	}
	if len(d.NullableChanged) != 1 || d.NullableChanged[0] != "email" {
		t.Errorf("nullable changed = %v, want [email]", d.NullableChanged)
	}
}

func TestTablesInSync(t *testing.T) {
	tbl := &catalog.Table{
		Name: "users",
		Columns: []catalog.Column{
			{Name: "id", DataType: "integer"},
			{Name: "name", DataType: "text"},
		},
	}
	if d := Tables(tbl, tbl); !d.InSync() {
		t.Errorf("identical tables reported out of sync: %+v", d)
	}
}

func TestSchemas(t *testing.T) {
	src := catalog.NewMemory()
	dst := catalog.NewMemory()

	src.AddTable(&catalog.Table{
		Schema:  "public",
		Name:    "users",
		Columns: []catalog.Column{{Name: "id", DataType: "integer"}},
	}, nil)
	src.AddTable(&catalog.Table{
		Schema:  "public",
		Name:    "orders",
		Columns: []catalog.Column{{Name: "id", DataType: "integer"}},
	}, nil)

	dst.AddTable(&catalog.Table{
		Schema:  "backup",
		Name:    "users",
		Columns: []catalog.Column{{Name: "id", DataType: "integer"}},
	}, nil)
	dst.AddTable(&catalog.Table{
		Schema:  "backup",
		Name:    "retired",
		Columns: []catalog.Column{{Name: "id", DataType: "integer"}},
	}, nil)

	diff, err := Schemas(context.Background(), src, "public", dst, "backup")
	if err != nil {
		t.Fatalf("Schemas: %v", err)
	}

	if len(diff.MissingTables) != 1 || diff.MissingTables[0] != "orders" {
		t.Errorf("missing = %v, want [orders]", diff.MissingTables)
	}
	if len(diff.ExtraTables) != 1 || diff.ExtraTables[0] != "retired" {
		t.Errorf("extra = %v, want [retired]", diff.ExtraTables)
	}
	if len(diff.Tables) != 1 || diff.Tables[0].Table != "users" {
		t.Fatalf("tables = %+v, want single users diff", diff.Tables)
	}
	if !diff.Tables[0].InSync() {
		t.Errorf("users should be in sync: %+v", diff.Tables[0])
	}
	if diff.InSync() {
		t.Error("schema diff with missing tables must not be in sync")
	}
}

func TestSchemasEnumDrift(t *testing.T) {
	src := catalog.NewMemory()
	dst := catalog.NewMemory()

	tbl := &catalog.Table{
		Schema:  "public",
		Name:    "users",
		Columns: []catalog.Column{{Name: "id", DataType: "integer"}},
	}
	src.AddTable(tbl, nil)
	dstTbl := *tbl
	dstTbl.Schema = "backup"
	dst.AddTable(&dstTbl, nil)

	src.AddEnum("public", "user_status", []string{"active", "banned"})
	dst.AddEnum("backup", "order_state", []string{"open", "closed"})

	diff, err := Schemas(context.Background(), src, "public", dst, "backup")
	if err != nil {
		t.Fatalf("Schemas: %v", err)
	}

	if len(diff.MissingEnums) != 1 || diff.MissingEnums[0] != "user_status" {
		t.Errorf("missing enums = %v, want [user_status]", diff.MissingEnums)
	}
	if len(diff.ExtraEnums) != 1 || diff.ExtraEnums[0] != "order_state" {
		t.Errorf("extra enums = %v, want [order_state]", diff.ExtraEnums)
	}
	if diff.InSync() {
		t.Error("enum drift must not report in sync")
	}
}
