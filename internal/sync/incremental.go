package sync

import (
	"context"
	"fmt"
	"time"

	"pgsync/internal/catalog"
	"pgsync/internal/fingerprint"
	"pgsync/internal/logging"
	"pgsync/internal/metrics"
	"pgsync/internal/schema"
)

// IncrementalSync adds rows present in the source but absent from the
// target, detected by content fingerprint over the non-auto-generated
// columns. Insert-only: a changed source row gets re-inserted as an
// additional row, never matched to or replacing its prior counterpart, and
// nothing is ever deleted. Callers needing update/delete propagation need a
// different tool.
func (r *Runner) IncrementalSync(ctx context.Context) (*Result, error) {
	logging.Info("starting incremental sync from %s to %s", r.Opts.SourceSchema, r.Opts.TargetSchema)

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

	run := metrics.NewRun("incremental_sync")
	runID := r.createRun("incremental_sync")

	outcomes := r.runWaves(ctx, waves, func(ctx context.Context, table string) TableOutcome {
		started := time.Now()
		outcome := r.syncTable(ctx, byName[table], enums, present, run)
		r.recordTable(runID, outcome, started)
		return outcome
	})

	result := r.finishRun("incremental_sync", runID, run, outcomes)
	logging.Info("incremental sync finished: %d rows inserted across %d tables",
		result.Rows, result.Completed)
	return result, nil
}

// syncTable diffs one table by fingerprint and inserts the new rows.
func (r *Runner) syncTable(ctx context.Context, t *catalog.Table, enums map[string][]string, present map[string]bool, run *metrics.Run) TableOutcome {
	outcome := TableOutcome{Table: t.Name}
	run.StartTable(t.Name, t.RowCount)
	defer func() { run.CompleteTable(t.Name, outcome.Err != nil) }()

	auditID := r.auditBegin(ctx, t.Name, "incremental_sync", nil)

	// The compared column set excludes auto-generated columns so sequence
	// keys and audit timestamps never make identical business content look
	// new.
	forced := make(map[string]bool)
	for _, name := range r.forcedFor(t.Name) {
		forced[name] = true
	}
	var columns []string
	for _, c := range t.Columns {
		if !forced[c.Name] && !schema.IsAutoGenerated(c) {
			columns = append(columns, c.Name)
		}
	}
	if len(columns) == 0 {
		outcome.Skipped = true
		outcome.Reason = "no comparable columns"
		r.auditComplete(ctx, auditID, 0, nil)
		logging.Warn("table %s skipped: no comparable columns", t.Name)
		return outcome
	}

	exists, err := r.Target.TableExists(ctx, r.Opts.TargetSchema, t.Name)
	if err != nil {
		outcome.Err = err
		r.auditComplete(ctx, auditID, 0, err)
		return outcome
	}
	if !exists {
		plan, err := schema.Synthesize(t, schema.Options{
			TargetSchema:         r.Opts.TargetSchema,
			Mode:                 schema.CreateIfAbsent,
			ExcludeAutoGenerated: true,
			ForceAutoGenerated:   r.forcedFor(t.Name),
			Enums:                enums,
			ExistingEnums:        present,
		})
		if err != nil {
			outcome.Err = err
			r.auditComplete(ctx, auditID, 0, err)
			return outcome
		}
		if err := r.Target.ExecDDL(ctx, plan.Statements); err != nil {
			outcome.Err = &schema.Error{Table: t.Name, Msg: err.Error()}
			r.auditComplete(ctx, auditID, 0, outcome.Err)
			return outcome
		}
	}

	srcRows, err := r.Source.FetchRows(ctx, r.Opts.SourceSchema, t.Name, columns)
	if err != nil {
		outcome.Err = err
		r.auditComplete(ctx, auditID, 0, err)
		logging.Error("error in incremental sync for %s: %v", t.Name, err)
		return outcome
	}
	if len(srcRows) == 0 {
		r.auditComplete(ctx, auditID, 0, nil)
		logging.Debug("table %s: source empty", t.Name)
		return outcome
	}

	// A freshly created or drifted target may not be readable with the
	// source's column set; treat that as an empty destination.
	dstRows, err := r.Target.FetchRows(ctx, r.Opts.TargetSchema, t.Name, columns)
	if err != nil {
		logging.Debug("could not fetch destination rows for %s: %v", t.Name, err)
		dstRows = nil
	}

	dstSet, err := fingerprint.Index(dstRows, columns)
	if err != nil {
		outcome.Err = err
		r.auditComplete(ctx, auditID, 0, err)
		return outcome
	}

	var newRows []catalog.Row
	for _, row := range srcRows {
		fp, err := fingerprint.Fingerprint(row, columns)
		if err != nil {
			outcome.Err = err
			r.auditComplete(ctx, auditID, 0, err)
			return outcome
		}
		if !dstSet[fp] {
			newRows = append(newRows, row)
		}
	}

	logging.Info("table %s: %d new / %d source / %d destination",
		t.Name, len(newRows), len(srcRows), len(dstRows))

	if len(newRows) == 0 {
		r.auditComplete(ctx, auditID, 0, nil)
		return outcome
	}

	inserted, err := r.insertRows(ctx, t.Name, columns, newRows, run)
	outcome.Rows = inserted
	if err != nil {
		outcome.Err = err
		r.auditComplete(ctx, auditID, inserted, err)
		logging.Error("error in incremental sync for %s: %v", t.Name, err)
		return outcome
	}

	r.auditComplete(ctx, auditID, inserted, nil)
	return outcome
}
