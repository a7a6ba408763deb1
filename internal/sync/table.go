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

// TableRecreate drops and rebuilds a single table in the target schema and
// copies all of its rows.
func (r *Runner) TableRecreate(ctx context.Context, table string) (*Result, error) {
	logging.Info("recreating table %s in %s", table, r.Opts.TargetSchema)

	t, err := catalog.LoadTable(ctx, r.Source, r.Opts.SourceSchema, table)
	if err != nil {
		return nil, fmt.Errorf("loading table %s: %w", table, err)
	}
	if err := r.Target.EnsureSchema(ctx, r.Opts.TargetSchema); err != nil {
		return nil, fmt.Errorf("ensuring target schema: %w", err)
	}
	enums, present, err := r.ensureEnums(ctx)
	if err != nil {
		return nil, err
	}

	run := metrics.NewRun("table_recreate")
	runID := r.createRun("table_recreate")

	started := time.Now()
	outcome := r.recreateTable(ctx, t, enums, present, run)
	r.recordTable(runID, outcome, started)

	return r.finishRun("table_recreate", runID, run, []TableOutcome{outcome}), nil
}

// TableDelta copies rows whose primary key is absent from the target. It
// never drops or deletes. Tables without a primary key cannot use this
// strategy.
func (r *Runner) TableDelta(ctx context.Context, table string) (*Result, error) {
	logging.Info("delta copy for table %s", table)

	t, err := catalog.LoadTable(ctx, r.Source, r.Opts.SourceSchema, table)
	if err != nil {
		return nil, fmt.Errorf("loading table %s: %w", table, err)
	}
	if !t.HasPK() {
		return nil, &NoPrimaryKeyError{Table: table}
	}
	if err := r.Target.EnsureSchema(ctx, r.Opts.TargetSchema); err != nil {
		return nil, fmt.Errorf("ensuring target schema: %w", err)
	}
	enums, present, err := r.ensureEnums(ctx)
	if err != nil {
		return nil, err
	}

	run := metrics.NewRun("table_delta")
	runID := r.createRun("table_delta")

	started := time.Now()
	outcome := r.deltaTable(ctx, t, enums, present, run)
	r.recordTable(runID, outcome, started)

	return r.finishRun("table_delta", runID, run, []TableOutcome{outcome}), nil
}

func (r *Runner) deltaTable(ctx context.Context, t *catalog.Table, enums map[string][]string, present map[string]bool, run *metrics.Run) TableOutcome {
	outcome := TableOutcome{Table: t.Name}
	run.StartTable(t.Name, t.RowCount)
	defer func() { run.CompleteTable(t.Name, outcome.Err != nil) }()

	auditID := r.auditBegin(ctx, t.Name, "table_delta",
		map[string]any{"exclude_auto_generated": r.Opts.ExcludeAutoGenerated})

	plan, err := schema.Synthesize(t, schema.Options{
		TargetSchema:         r.Opts.TargetSchema,
		Mode:                 schema.CreateIfAbsent,
		ExcludeAutoGenerated: r.Opts.ExcludeAutoGenerated,
		ForceAutoGenerated:   r.forcedFor(t.Name),
		Enums:                enums,
		ExistingEnums:        present,
	})
	if err != nil {
		outcome.Err = err
		r.auditComplete(ctx, auditID, 0, err)
		return outcome
	}

	// Delta matching keys on the primary key; it must have survived the
	// exclusion filter to identify rows.
	pkKept := false
	for _, c := range plan.Columns {
		if c == t.PrimaryKey {
			pkKept = true
			break
		}
	}
	if !pkKept {
		outcome.Err = fmt.Errorf("primary key %s of %s excluded as auto-generated; delta copy needs it", t.PrimaryKey, t.Name)
		r.auditComplete(ctx, auditID, 0, outcome.Err)
		return outcome
	}

	if err := r.Target.ExecDDL(ctx, plan.Statements); err != nil {
		outcome.Err = &schema.Error{Table: t.Name, Msg: err.Error()}
		r.auditComplete(ctx, auditID, 0, outcome.Err)
		return outcome
	}

	srcRows, err := r.Source.FetchRows(ctx, r.Opts.SourceSchema, t.Name, plan.Columns)
	if err != nil {
		outcome.Err = err
		r.auditComplete(ctx, auditID, 0, err)
		return outcome
	}

	pkCol := []string{t.PrimaryKey}
	dstKeys, err := r.Target.FetchRows(ctx, r.Opts.TargetSchema, t.Name, pkCol)
	if err != nil {
		logging.Debug("could not fetch destination keys for %s: %v", t.Name, err)
		dstKeys = nil
	}

	existing := make(map[any]bool, len(dstKeys))
	for _, row := range dstKeys {
		existing[fingerprint.Canonicalize(row[t.PrimaryKey])] = true
	}

	var newRows []catalog.Row
	for _, row := range srcRows {
		if !existing[fingerprint.Canonicalize(row[t.PrimaryKey])] {
			newRows = append(newRows, row)
		}
	}

	logging.Info("table %s: %d new rows out of %d total", t.Name, len(newRows), len(srcRows))

	if len(newRows) == 0 {
		r.auditComplete(ctx, auditID, 0, nil)
		return outcome
	}

	inserted, err := r.insertRows(ctx, t.Name, plan.Columns, newRows, run)
	outcome.Rows = inserted
	if err != nil {
		outcome.Err = err
		r.auditComplete(ctx, auditID, inserted, err)
		return outcome
	}

	r.auditComplete(ctx, auditID, inserted, nil)
	return outcome
}
