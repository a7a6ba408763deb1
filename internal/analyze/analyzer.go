package analyze

import (
	"context"
	"fmt"
	"time"

	"pgsync/internal/catalog"
	"pgsync/internal/compare"
	"pgsync/internal/depgraph"
	"pgsync/internal/logging"
	"pgsync/internal/schema"
)

// Analyzer produces pre-flight plans against live source and target
// catalogs. It never mutates either side.
type Analyzer struct {
	Source catalog.Reader
	Target catalog.Reader

	SourceSchema string
	TargetSchema string

	// BatchSize feeds the memory estimate; zero means the default batch.
	BatchSize int
}

// perTableOverhead is added to duration estimates to cover schema creation
// and commit latency.
const (
	recreateOverheadSeconds = 2
	insertOverheadSeconds   = 1
)

// FullMigration analyzes a drop-and-recreate run over every source table.
func (a *Analyzer) FullMigration(ctx context.Context, excludeAutoGenerated bool) (*Result, error) {
	logging.Info("starting plan analysis for full migration")

	result := a.newResult("full_migration")

	tables, err := a.Source.ListTables(ctx, a.SourceSchema)
	if err != nil {
		return nil, fmt.Errorf("list source tables: %w", err)
	}
	result.TotalTables = len(tables)

	for _, table := range tables {
		impact := a.tableForFullMigration(ctx, table, excludeAutoGenerated)
		result.Impacts[table] = impact

		switch impact.Action {
		case ActionRecreate:
			result.TablesToModify++
		case ActionCreate:
			result.TablesToCreate++
		}
		result.TotalRows += impact.Inserts
		result.EstimatedBytes += impact.EstimatedBytes
		result.EstimatedSeconds += impact.EstimatedSeconds
	}

	a.finish(ctx, result, tables)
	logging.Info("plan analysis complete: %d tables, %d rows", result.TotalTables, result.TotalRows)
	return result, nil
}

// IncrementalSync analyzes an insert-only sync over every source table.
func (a *Analyzer) IncrementalSync(ctx context.Context) (*Result, error) {
	logging.Info("starting plan analysis for incremental sync")

	result := a.newResult("incremental_sync")

	tables, err := a.Source.ListTables(ctx, a.SourceSchema)
	if err != nil {
		return nil, fmt.Errorf("list source tables: %w", err)
	}
	result.TotalTables = len(tables)

	for _, table := range tables {
		impact := a.tableForIncrementalSync(ctx, table)
		result.Impacts[table] = impact

		switch {
		case !impact.ExistsInTarget:
			result.TablesToCreate++
		case impact.HasSchemaChanges() || impact.Inserts > 0:
			result.TablesToModify++
		default:
			result.TablesUnchanged++
		}
		result.TotalRows += impact.Inserts
		result.EstimatedBytes += impact.EstimatedBytes
		result.EstimatedSeconds += impact.EstimatedSeconds
	}

	a.finish(ctx, result, tables)
	logging.Info("plan analysis complete: %d tables to sync", result.TablesToModify)
	return result, nil
}

// Table analyzes a single table in isolation. Recreate mode mirrors the full
// migration path; any other mode mirrors the incremental path.
func (a *Analyzer) Table(ctx context.Context, table string, recreate, excludeAutoGenerated bool) *TableImpact {
	if recreate {
		return a.tableForFullMigration(ctx, table, excludeAutoGenerated)
	}
	return a.tableForIncrementalSync(ctx, table)
}

func (a *Analyzer) newResult(mode string) *Result {
	return &Result{
		Mode:         mode,
		StartedAt:    time.Now(),
		SourceSchema: a.SourceSchema,
		TargetSchema: a.TargetSchema,
		Impacts:      map[string]*TableImpact{},
	}
}

// finish computes ordering, cycles, resources, and risk for a populated
// result. estimateResources runs first so the risk pass can see the
// footprint when phrasing recommendations.
func (a *Analyzer) finish(ctx context.Context, result *Result, tables []string) {
	result.Edges = a.dependencyEdges(ctx, tables)
	plan := depgraph.Build(tables, result.Edges)
	result.Order = plan.Order
	result.Cycles = plan.Cycles

	estimateResources(result, a.BatchSize)
	assessOverallRisk(result)
}

func (a *Analyzer) tableForFullMigration(ctx context.Context, table string, excludeAutoGenerated bool) *TableImpact {
	impact := &TableImpact{Table: table, Action: ActionRecreate}

	exists, err := a.Target.TableExists(ctx, a.TargetSchema, table)
	if err != nil {
		return a.failImpact(impact, err)
	}
	impact.ExistsInTarget = exists
	if !exists {
		impact.Action = ActionCreate
	}

	impact.SourceRows, err = a.Source.RowCount(ctx, a.SourceSchema, table)
	if err != nil {
		return a.failImpact(impact, err)
	}
	if exists {
		impact.TargetRows, err = a.Target.RowCount(ctx, a.TargetSchema, table)
		if err != nil {
			return a.failImpact(impact, err)
		}
	}

	if excludeAutoGenerated {
		cols, err := a.Source.Columns(ctx, a.SourceSchema, table)
		if err != nil {
			return a.failImpact(impact, err)
		}
		kept := 0
		for _, c := range cols {
			if !schema.IsAutoGenerated(c) {
				kept++
			}
		}
		if kept == 0 {
			impact.Warnings = append(impact.Warnings,
				"no columns survive auto-generated exclusion")
		}
	}

	// Recreation inserts every source row and discards every target row.
	impact.Inserts = impact.SourceRows
	impact.Deletes = impact.TargetRows

	impact.EstimatedBytes = impact.SourceRows * avgRowSizeBytes
	impact.EstimatedSeconds = float64(impact.SourceRows)/insertRate + recreateOverheadSeconds

	fks, err := a.Source.ForeignKeys(ctx, a.SourceSchema, table)
	if err != nil {
		return a.failImpact(impact, err)
	}
	for _, fk := range fks {
		impact.Dependencies = append(impact.Dependencies, fk.RefTable)
	}

	assessTableRisk(impact)
	return impact
}

func (a *Analyzer) tableForIncrementalSync(ctx context.Context, table string) *TableImpact {
	impact := &TableImpact{Table: table, Action: ActionInsert}

	exists, err := a.Target.TableExists(ctx, a.TargetSchema, table)
	if err != nil {
		return a.failImpact(impact, err)
	}
	impact.ExistsInTarget = exists

	impact.SourceRows, err = a.Source.RowCount(ctx, a.SourceSchema, table)
	if err != nil {
		return a.failImpact(impact, err)
	}

	if exists {
		impact.TargetRows, err = a.Target.RowCount(ctx, a.TargetSchema, table)
		if err != nil {
			return a.failImpact(impact, err)
		}
		// Count delta as a cheap stand-in; the sync driver itself diffs
		// by fingerprint, which analysis must not pay for.
		if impact.SourceRows > impact.TargetRows {
			impact.Inserts = impact.SourceRows - impact.TargetRows
		}
	} else {
		impact.Inserts = impact.SourceRows
		impact.Action = ActionCreate
	}

	impact.EstimatedBytes = impact.Inserts * avgRowSizeBytes
	impact.EstimatedSeconds = float64(impact.Inserts)/insertRate + insertOverheadSeconds

	if exists {
		a.schemaDelta(ctx, impact)
	}

	fks, err := a.Source.ForeignKeys(ctx, a.SourceSchema, table)
	if err != nil {
		return a.failImpact(impact, err)
	}
	for _, fk := range fks {
		impact.Dependencies = append(impact.Dependencies, fk.RefTable)
	}

	assessTableRisk(impact)
	return impact
}

// schemaDelta fills the impact's column deltas from a structural diff.
// Failure here degrades the analysis, it does not abort it.
func (a *Analyzer) schemaDelta(ctx context.Context, impact *TableImpact) {
	src, err := catalog.LoadTable(ctx, a.Source, a.SourceSchema, impact.Table)
	if err != nil {
		logging.Warn("could not analyze schema changes for %s: %v", impact.Table, err)
		return
	}
	dst, err := catalog.LoadTable(ctx, a.Target, a.TargetSchema, impact.Table)
	if err != nil {
		logging.Warn("could not analyze schema changes for %s: %v", impact.Table, err)
		return
	}

	diff := compare.Tables(src, dst)
	impact.AddedColumns = diff.AddedColumns
	impact.RemovedColumns = diff.RemovedColumns
	for _, c := range diff.TypeChanged {
		impact.ModifiedColumns = append(impact.ModifiedColumns, c.Name)
	}
}

// failImpact records a per-table analysis failure. The table stays in the
// plan with elevated risk so the run can continue best-effort.
func (a *Analyzer) failImpact(impact *TableImpact, err error) *TableImpact {
	logging.Error("error analyzing table %s: %v", impact.Table, err)
	impact.Warnings = append(impact.Warnings, fmt.Sprintf("analysis error: %v", err))
	impact.Risk = impact.Risk.Escalate(RiskHigh)
	return impact
}

func (a *Analyzer) dependencyEdges(ctx context.Context, tables []string) []depgraph.Edge {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t] = true
	}

	seen := make(map[depgraph.Edge]bool)
	var edges []depgraph.Edge
	for _, table := range tables {
		fks, err := a.Source.ForeignKeys(ctx, a.SourceSchema, table)
		if err != nil {
			logging.Warn("could not fetch foreign keys for %s: %v", table, err)
			continue
		}
		for _, fk := range fks {
			if fk.RefTable == table || !inSet[fk.RefTable] {
				continue
			}
			e := depgraph.Edge{From: table, To: fk.RefTable}
			if !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}
	return edges
}
