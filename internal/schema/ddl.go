// Package schema synthesizes PostgreSQL DDL from introspected table
// descriptors: column clauses, sequence relocation, enum type creation, and
// complete create/recreate statement lists.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pgsync/internal/catalog"
)

// Mode selects how Synthesize treats an existing destination table.
type Mode int

const (
	// CreateIfAbsent never drops; safe to call repeatedly.
	CreateIfAbsent Mode = iota

	// DropAndRecreate emits an unconditional cascading drop before creation.
	DropAndRecreate
)

// Error is a schema synthesis failure. It is fatal for the affected table
// only; sibling tables are unaffected.
type Error struct {
	Table string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema synthesis for %s: %s", e.Table, e.Msg)
}

// Options controls synthesis for one table.
type Options struct {
	TargetSchema string
	Mode         Mode

	// ExcludeAutoGenerated drops auto-generated columns and their
	// defaults from the synthesized table.
	ExcludeAutoGenerated bool

	// ForceAutoGenerated lists column names treated as auto-generated
	// regardless of the heuristic.
	ForceAutoGenerated []string

	// Enums holds the source schema's enumerated types (name to labels).
	// ExistingEnums names types already present in the target schema;
	// only missing ones get a CREATE TYPE statement.
	Enums         map[string][]string
	ExistingEnums map[string]bool
}

// Plan is the ordered DDL produced for one table plus the columns that were
// actually materialized.
type Plan struct {
	Statements []string
	Columns    []string
}

var nextvalRe = regexp.MustCompile(`nextval\('([^']+)'`)

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ColumnDefinition builds the column clause for a CREATE TABLE statement and
// returns any CREATE SEQUENCE statements the clause depends on. pk is the
// table's primary key column name, or "" if none.
func ColumnDefinition(c catalog.Column, targetSchema string, excludeAuto bool, pk string) (string, []string) {
	dataType := c.DataType

	switch {
	case c.IsUserDefined():
		// Enumerated types are relocated into the target schema. The
		// type itself is created by Synthesize before the table.
		dataType = targetSchema + "." + c.UDTName
	case strings.Contains(dataType, "character") && c.MaxLength > 0:
		dataType = fmt.Sprintf("%s(%d)", dataType, c.MaxLength)
	case strings.Contains(dataType, "numeric") && c.Precision > 0:
		if c.HasScale {
			dataType = fmt.Sprintf("%s(%d,%d)", dataType, c.Precision, c.Scale)
		} else {
			dataType = fmt.Sprintf("%s(%d)", dataType, c.Precision)
		}
	}

	line := quoteIdent(c.Name) + " " + dataType
	var sequences []string

	// An excluded auto-increment primary key must be allowed to default on
	// insert, so NOT NULL is suppressed for it.
	if !c.Nullable && !(excludeAuto && c.Name == pk) {
		line += " NOT NULL"
	}

	if c.Default != "" {
		if excludeAuto && IsAutoGenerated(c) {
			return line, sequences
		}

		def := c.Default
		if strings.Contains(strings.ToLower(def), "nextval") {
			if m := nextvalRe.FindStringSubmatch(def); m != nil {
				parts := strings.Split(m[1], ".")
				seq := parts[len(parts)-1]
				sequences = append(sequences,
					fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s.%s", targetSchema, quoteIdent(seq)))
				def = fmt.Sprintf("nextval('%s.%s'::regclass)", targetSchema, seq)
			}
		}
		line += " DEFAULT " + def
	}

	return line, sequences
}

// EnumStatements returns CREATE TYPE statements for every source enum not
// already present in the target schema. Check-then-create rather than
// error-tolerant create: a type that exists is left untouched even when its
// labels differ.
func EnumStatements(enums map[string][]string, existing map[string]bool, targetSchema string) []string {
	if len(enums) == 0 {
		return nil
	}

	names := make([]string, 0, len(enums))
	for name := range enums {
		if !existing[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var stmts []string
	for _, name := range names {
		values := enums[name]
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = quoteLiteral(v)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TYPE %s.%s AS ENUM (%s)",
			targetSchema, name, strings.Join(quoted, ", ")))
	}
	return stmts
}

// Synthesize produces the ordered DDL for one table: missing enum types
// first, then sequences, then (for DropAndRecreate) the cascading drop, then
// the table itself. The caller executes the statements in a single
// transaction. Returns a *Error when no columns survive the exclusion
// filter.
func Synthesize(t *catalog.Table, opts Options) (*Plan, error) {
	forced := make(map[string]bool, len(opts.ForceAutoGenerated))
	for _, name := range opts.ForceAutoGenerated {
		forced[name] = true
	}

	isAuto := func(c catalog.Column) bool {
		return forced[c.Name] || IsAutoGenerated(c)
	}

	cols := t.Columns
	if opts.ExcludeAutoGenerated {
		kept := make([]catalog.Column, 0, len(cols))
		for _, c := range cols {
			if !isAuto(c) {
				kept = append(kept, c)
			}
		}
		cols = kept
	}

	if len(cols) == 0 {
		return nil, &Error{Table: t.Name, Msg: "no columns survive auto-generated exclusion"}
	}

	var (
		defs      []string
		sequences []string
		colNames  []string
	)
	for _, c := range cols {
		def, seqs := ColumnDefinition(c, opts.TargetSchema, opts.ExcludeAutoGenerated, t.PrimaryKey)
		defs = append(defs, def)
		sequences = append(sequences, seqs...)
		colNames = append(colNames, c.Name)
	}

	// PK constraint only when the key column was materialized.
	if t.PrimaryKey != "" {
		pkKept := !opts.ExcludeAutoGenerated
		if !pkKept {
			for _, name := range colNames {
				if name == t.PrimaryKey {
					pkKept = true
					break
				}
			}
		}
		if pkKept {
			defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdent(t.PrimaryKey)))
		}
	}

	stmts := EnumStatements(opts.Enums, opts.ExistingEnums, opts.TargetSchema)
	stmts = append(stmts, sequences...)

	qualified := opts.TargetSchema + "." + quoteIdent(t.Name)
	switch opts.Mode {
	case DropAndRecreate:
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", qualified))
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", qualified, strings.Join(defs, ",\n\t")))
	default:
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", qualified, strings.Join(defs, ",\n\t")))
	}

	return &Plan{Statements: stmts, Columns: colNames}, nil
}

// RetargetIndex rewrites an index definition from the source schema to the
// target schema.
func RetargetIndex(definition, sourceSchema, targetSchema string) string {
	return strings.ReplaceAll(definition, sourceSchema+".", targetSchema+".")
}
