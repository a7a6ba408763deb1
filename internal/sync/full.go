package sync

import (
	"context"
	"fmt"
	"time"

	"pgsync/internal/analyze"
	"pgsync/internal/catalog"
	"pgsync/internal/logging"
	"pgsync/internal/metrics"
	"pgsync/internal/schema"
)

// FullMigration drops and recreates every source table in the target schema
// and copies all rows. plan is the pre-flight analysis for this run; when it
// is unsafe the driver refuses unless force is set. A nil plan skips the
// gate entirely (the caller opted out of analysis).
func (r *Runner) FullMigration(ctx context.Context, plan *analyze.Result, force bool) (*Result, error) {
	if plan != nil && !plan.SafeToExecute() && !force {
		return nil, fmt.Errorf("%w: overall risk %s, %d cycles, %d critical warnings",
			ErrUnsafePlan, plan.OverallRisk, len(plan.Cycles), len(plan.CriticalWarnings))
	}

	logging.Info("starting full migration from %s to %s", r.Opts.SourceSchema, r.Opts.TargetSchema)

	tables, err := catalog.LoadTables(ctx, r.Source, r.Opts.SourceSchema)
	if err != nil {
		return nil, fmt.Errorf("loading source tables: %w", err)
	}
	if tables, err = r.selectTables(tables); err != nil {
		return nil, err
	}
	if err := r.Target.EnsureSchema(ctx, r.Opts.TargetSchema); err != nil {
		return nil, fmt.Errorf("ensuring target schema: %w", err)
	}
	enums, present, err := r.ensureEnums(ctx)
	if err != nil {
		return nil, err
	}

	waves, dgPlan := buildWaves(tables)
	for _, cycle := range dgPlan.Cycles {
		logging.Warn("dependency cycle: %v", cycle)
	}

	byName := make(map[string]*catalog.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	run := metrics.NewRun("full_migration")
	runID := r.createRun("full_migration")

	outcomes := r.runWaves(ctx, waves, func(ctx context.Context, table string) TableOutcome {
		started := time.Now()
		outcome := r.recreateTable(ctx, byName[table], enums, present, run)
		r.recordTable(runID, outcome, started)
		return outcome
	})

	result := r.finishRun("full_migration", runID, run, outcomes)
	logging.Info("full migration finished: %d completed, %d failed, %d rows",
		result.Completed, result.Failed, result.Rows)
	return result, nil
}

// recreateTable rebuilds one table from scratch and copies its rows.
func (r *Runner) recreateTable(ctx context.Context, t *catalog.Table, enums map[string][]string, present map[string]bool, run *metrics.Run) TableOutcome {
	outcome := TableOutcome{Table: t.Name}
	run.StartTable(t.Name, t.RowCount)
	defer func() { run.CompleteTable(t.Name, outcome.Err != nil) }()

	auditID := r.auditBegin(ctx, t.Name, "full_migration",
		map[string]any{"exclude_auto_generated": r.Opts.ExcludeAutoGenerated})

	plan, err := schema.Synthesize(t, schema.Options{
		TargetSchema:         r.Opts.TargetSchema,
		Mode:                 schema.DropAndRecreate,
		ExcludeAutoGenerated: r.Opts.ExcludeAutoGenerated,
		ForceAutoGenerated:   r.forcedFor(t.Name),
		Enums:                enums,
		ExistingEnums:        present,
	})
	if err != nil {
		outcome.Err = err
		r.auditComplete(ctx, auditID, 0, err)
		logging.Error("error migrating table %s: %v", t.Name, err)
		return outcome
	}

	if err := r.Target.ExecDDL(ctx, plan.Statements); err != nil {
		outcome.Err = &schema.Error{Table: t.Name, Msg: err.Error()}
		r.auditComplete(ctx, auditID, 0, outcome.Err)
		logging.Error("error migrating table %s: %v", t.Name, outcome.Err)
		return outcome
	}

	inserted, err := r.copyRows(ctx, t.Name, plan.Columns, run)
	outcome.Rows = inserted
	if err != nil {
		outcome.Err = err
		r.auditComplete(ctx, auditID, inserted, err)
		logging.Error("error migrating table %s: %v", t.Name, err)
		return outcome
	}

	if !r.Opts.SkipIndexes {
		r.createIndexes(ctx, t)
	}

	r.auditComplete(ctx, auditID, inserted, nil)
	logging.Info("table %s: %d rows copied", t.Name, inserted)
	return outcome
}
