// Package sync implements the synchronization drivers: full rebuild,
// incremental add-only, and the single-table recreate/delta variants. Each
// driver walks the dependency order produced by depgraph and moves rows
// through the catalog interfaces.
package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"pgsync/internal/catalog"
	"pgsync/internal/depgraph"
	"pgsync/internal/history"
	"pgsync/internal/logging"
	"pgsync/internal/metrics"
	"pgsync/internal/progress"
	"pgsync/internal/schema"
)

// Options are the knobs shared by every driver.
type Options struct {
	SourceSchema string
	TargetSchema string

	BatchSize int
	Workers   int

	SkipIndexes          bool
	ExcludeAutoGenerated bool

	// Tables restricts the run to the named tables. Empty means all tables
	// in the source schema.
	Tables []string

	// ForceAutoGenerated maps table name to columns treated as
	// auto-generated regardless of the heuristic.
	ForceAutoGenerated map[string][]string
}

// AuditLog records per-table runs in the target database. Optional; a nil
// log disables auditing.
type AuditLog interface {
	Begin(ctx context.Context, table, migrationType string, metadata map[string]any) (int64, error)
	Complete(ctx context.Context, id, rowsMigrated int64, runErr error) error
}

// RunLog persists run history locally. history.Store implements it.
type RunLog interface {
	CreateRun(mode, sourceSchema, targetSchema string) (string, error)
	CompleteRun(id string, tables int, rows int64, runErr error) error
	RecordTable(r history.TableResult) error
}

// Runner wires the drivers to their collaborators. Audit, History, and
// Progress are optional.
type Runner struct {
	Source catalog.Reader
	Target catalog.Catalog

	Opts Options

	Audit    AuditLog
	History  RunLog
	Progress *progress.Tracker
}

// TableOutcome is one table's result within a run.
type TableOutcome struct {
	Table   string
	Rows    int64
	Err     error
	Skipped bool
	Reason  string
}

// Result is a completed driver invocation. Per-table failures do not fail
// the run; callers inspect Failed and Outcomes.
type Result struct {
	RunID string
	Mode  string

	Outcomes []TableOutcome

	Rows      int64
	Completed int
	Failed    int
	Skipped   int

	Metrics metrics.Snapshot
}

func (r *Runner) batchSize() int {
	if r.Opts.BatchSize > 0 {
		return r.Opts.BatchSize
	}
	return 1000
}

func (r *Runner) workers() int {
	if r.Opts.Workers > 0 {
		return r.Opts.Workers
	}
	return 4
}

func (r *Runner) forcedFor(table string) []string {
	if r.Opts.ForceAutoGenerated == nil {
		return nil
	}
	return r.Opts.ForceAutoGenerated[table]
}

// ensureEnums creates every source enum type missing from the target schema
// and returns the source enums plus the full set of type names now present.
// Doing this once up front keeps per-table DDL free of type creation races
// when tables run concurrently within a wave.
func (r *Runner) ensureEnums(ctx context.Context) (map[string][]string, map[string]bool, error) {
	enums, err := r.Source.EnumTypes(ctx, r.Opts.SourceSchema)
	if err != nil {
		return nil, nil, fmt.Errorf("reading source enum types: %w", err)
	}
	existing, err := r.Target.EnumTypes(ctx, r.Opts.TargetSchema)
	if err != nil {
		return nil, nil, fmt.Errorf("reading target enum types: %w", err)
	}

	present := make(map[string]bool, len(existing))
	for name := range existing {
		present[name] = true
	}

	stmts := schema.EnumStatements(enums, present, r.Opts.TargetSchema)
	if len(stmts) > 0 {
		if err := r.Target.ExecDDL(ctx, stmts); err != nil {
			return nil, nil, fmt.Errorf("creating enum types: %w", err)
		}
	}
	for name := range enums {
		present[name] = true
	}
	return enums, present, nil
}

// selectTables applies the Tables restriction to the loaded table set. An
// unknown name is an error rather than a silent no-op.
func (r *Runner) selectTables(tables []*catalog.Table) ([]*catalog.Table, error) {
	if len(r.Opts.Tables) == 0 {
		return tables, nil
	}
	byName := make(map[string]*catalog.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	selected := make([]*catalog.Table, 0, len(r.Opts.Tables))
	for _, name := range r.Opts.Tables {
		t, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("table %s not found in schema %s", name, r.Opts.SourceSchema)
		}
		selected = append(selected, t)
	}
	return selected, nil
}

// runWaves executes fn for every table, honoring wave boundaries: tables in
// one wave run concurrently under the worker limit, and a wave starts only
// after the previous wave finished.
func (r *Runner) runWaves(ctx context.Context, waves [][]string, fn func(ctx context.Context, table string) TableOutcome) []TableOutcome {
	var (
		mu       gosync.Mutex
		outcomes []TableOutcome
	)

	sem := make(chan struct{}, r.workers())
	for _, wave := range waves {
		var wg gosync.WaitGroup
		for _, table := range wave {
			select {
			case <-ctx.Done():
				mu.Lock()
				outcomes = append(outcomes, TableOutcome{Table: table, Err: ctx.Err()})
				mu.Unlock()
				continue
			case sem <- struct{}{}:
			}

			wg.Add(1)
			go func(table string) {
				defer wg.Done()
				defer func() { <-sem }()

				outcome := fn(ctx, table)
				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()
			}(table)
		}
		wg.Wait()
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Table < outcomes[j].Table })
	return outcomes
}

// finishRun aggregates outcomes, closes the metrics run, and records the
// run in history.
func (r *Runner) finishRun(mode, runID string, run *metrics.Run, outcomes []TableOutcome) *Result {
	result := &Result{RunID: runID, Mode: mode, Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			result.Failed++
		case o.Skipped:
			result.Skipped++
		default:
			result.Completed++
		}
		result.Rows += o.Rows
	}

	run.Finish()
	result.Metrics = run.Snapshot()

	if r.History != nil && runID != "" {
		var runErr error
		if result.Failed > 0 {
			runErr = fmt.Errorf("%d of %d tables failed", result.Failed, len(outcomes))
		}
		if err := r.History.CompleteRun(runID, len(outcomes), result.Rows, runErr); err != nil {
			logging.Warn("could not finalize run history: %v", err)
		}
	}

	if r.Progress != nil {
		r.Progress.Summary()
	}
	return result
}

func (r *Runner) createRun(mode string) string {
	if r.History == nil {
		return ""
	}
	id, err := r.History.CreateRun(mode, r.Opts.SourceSchema, r.Opts.TargetSchema)
	if err != nil {
		logging.Warn("could not create run history record: %v", err)
		return ""
	}
	return id
}

func (r *Runner) recordTable(runID string, o TableOutcome, started time.Time) {
	if r.History == nil || runID == "" {
		return
	}
	rec := history.TableResult{
		RunID:     runID,
		Table:     o.Table,
		Status:    "completed",
		Rows:      o.Rows,
		StartedAt: started,
		Seconds:   time.Since(started).Seconds(),
	}
	if o.Err != nil {
		rec.Status = "failed"
		rec.Error = o.Err.Error()
	} else if o.Skipped {
		rec.Status = "skipped"
		rec.Error = o.Reason
	}
	if err := r.History.RecordTable(rec); err != nil {
		logging.Warn("could not record table history for %s: %v", o.Table, err)
	}
}

// auditBegin and auditComplete tolerate a nil audit log. A failed table
// never gets a completed audit record with success status.
func (r *Runner) auditBegin(ctx context.Context, table, migrationType string, meta map[string]any) int64 {
	if r.Audit == nil {
		return 0
	}
	id, err := r.Audit.Begin(ctx, table, migrationType, meta)
	if err != nil {
		logging.Warn("audit start failed for %s: %v", table, err)
		return 0
	}
	return id
}

func (r *Runner) auditComplete(ctx context.Context, id, rows int64, runErr error) {
	if r.Audit == nil || id == 0 {
		return
	}
	if err := r.Audit.Complete(ctx, id, rows, runErr); err != nil {
		logging.Warn("audit completion failed for entry %d: %v", id, err)
	}
}

// copyRows moves the given column subset of a table from source to target.
func (r *Runner) copyRows(ctx context.Context, table string, columns []string, run *metrics.Run) (int64, error) {
	rows, err := r.Source.FetchRows(ctx, r.Opts.SourceSchema, table, columns)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return r.insertRows(ctx, table, columns, rows, run)
}

func (r *Runner) insertRows(ctx context.Context, table string, columns []string, rows []catalog.Row, run *metrics.Run) (int64, error) {
	if r.Progress != nil {
		r.Progress.StartTable(table, int64(len(rows)))
	}

	inserted, err := r.Target.InsertRows(ctx, r.Opts.TargetSchema, table, columns, rows, r.batchSize())
	if run != nil && inserted > 0 {
		run.AddRows(table, inserted, 0)
	}
	if r.Progress != nil {
		r.Progress.Add(inserted)
		r.Progress.FinishTable()
	}
	if err != nil {
		return inserted, &RowTransferError{Table: table, Err: err}
	}
	return inserted, nil
}

// createIndexes rebuilds the source table's secondary indexes in the target
// schema. Index failures degrade the run, they do not fail the table.
func (r *Runner) createIndexes(ctx context.Context, t *catalog.Table) {
	for _, idx := range t.Indexes {
		def := schema.RetargetIndex(idx.Definition, r.Opts.SourceSchema, r.Opts.TargetSchema)
		if err := r.Target.CreateIndex(ctx, def); err != nil {
			logging.Warn("could not create index %s on %s: %v", idx.Name, t.Name, err)
		}
	}
}

// buildWaves computes the dependency-ordered waves for a table set.
func buildWaves(tables []*catalog.Table) ([][]string, *depgraph.Plan) {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	edges := depgraph.EdgesFromTables(tables)
	plan := depgraph.Build(names, edges)
	return depgraph.Waves(plan, edges), plan
}
