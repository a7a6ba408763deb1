package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"

	"pgsync/internal/analyze"
	"pgsync/internal/audit"
	"pgsync/internal/catalog"
	"pgsync/internal/compare"
	"pgsync/internal/config"
	"pgsync/internal/history"
	"pgsync/internal/logging"
	"pgsync/internal/progress"
	"pgsync/internal/sync"
	"pgsync/internal/util"
	"pgsync/internal/version"
)

func main() {
	app := &cli.App{
		Name:    version.Name,
		Usage:   version.Description,
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "pgsync.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "plan",
				Usage:  "Analyze a sync without executing it",
				Action: runPlan,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Value: "full",
						Usage: "Plan type: full, incremental, or table",
					},
					&cli.StringFlag{
						Name:  "table",
						Usage: "Table name (required for --type table)",
					},
					&cli.StringFlag{
						Name:  "mode",
						Value: "recreate",
						Usage: "Single-table mode: recreate or delta",
					},
					&cli.BoolFlag{
						Name:  "exclude-auto",
						Usage: "Exclude auto-generated columns",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Emit the plan as JSON",
					},
				},
			},
			{
				Name:   "full",
				Usage:  "Drop and recreate every table in the target schema with fresh data",
				Action: runFull,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "exclude-auto",
						Usage: "Exclude auto-generated columns",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Proceed even when the plan is not safe to execute",
					},
					&cli.BoolFlag{
						Name:  "skip-plan",
						Usage: "Skip the pre-flight analysis entirely",
					},
					&cli.BoolFlag{
						Name:  "skip-indexes",
						Usage: "Do not recreate secondary indexes",
					},
					&cli.StringFlag{
						Name:  "tables",
						Usage: "Comma-separated list of tables to sync (default: all)",
					},
				},
			},
			{
				Name:   "sync",
				Usage:  "Incrementally add rows missing from the target (insert-only)",
				Action: runSync,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tables",
						Usage: "Comma-separated list of tables to sync (default: all)",
					},
				},
			},
			{
				Name:      "table",
				Usage:     "Sync a single table",
				ArgsUsage: "NAME",
				Action:    runTable,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Value: "recreate",
						Usage: "Sync mode: recreate or delta",
					},
					&cli.BoolFlag{
						Name:  "exclude-auto",
						Usage: "Exclude auto-generated columns",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Recreate even when the target table holds rows",
					},
					&cli.BoolFlag{
						Name:  "skip-indexes",
						Usage: "Do not recreate secondary indexes",
					},
				},
			},
			{
				Name:   "compare",
				Usage:  "Diff source and target schema structure",
				Action: runCompare,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Emit the diff as JSON",
					},
				},
			},
			{
				Name:   "history",
				Usage:  "List past runs, or view details of a specific run",
				Action: showHistory,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show table details for a specific run ID",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads configuration and applies the logging flags.
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	logging.SetFormat(cfg.LogFormat)
	return cfg, nil
}

// openCatalogs connects both pools, which doubles as the connection test.
func openCatalogs(ctx context.Context, cfg *config.Config) (*catalog.Pool, *catalog.Pool, error) {
	src, err := catalog.NewPool(ctx, cfg.Source.DSN(), cfg.Source.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to source: %w", err)
	}
	dst, err := catalog.NewPool(ctx, cfg.Target.DSN(), cfg.Target.MaxConns)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("connecting to target: %w", err)
	}
	return src, dst, nil
}

// interruptible returns a context cancelled on SIGINT/SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted. Finishing current batch...")
		cancel()
	}()
	return ctx, cancel
}

func newAnalyzer(cfg *config.Config, src, dst catalog.Reader) *analyze.Analyzer {
	return &analyze.Analyzer{
		Source:       src,
		Target:       dst,
		SourceSchema: cfg.Source.Schema,
		TargetSchema: cfg.Target.Schema,
		BatchSize:    cfg.Migration.BatchSize,
	}
}

// newRunner wires a driver runner with audit and history logging. The audit
// tracker is best-effort; a failure to set it up degrades the run rather
// than blocking it.
func newRunner(ctx context.Context, cfg *config.Config, src *catalog.Pool, dst *catalog.Pool, quiet bool) (*sync.Runner, func()) {
	r := &sync.Runner{
		Source: src,
		Target: dst,
		Opts: sync.Options{
			SourceSchema:         cfg.Source.Schema,
			TargetSchema:         cfg.Target.Schema,
			BatchSize:            cfg.Migration.BatchSize,
			Workers:              cfg.Migration.Workers,
			SkipIndexes:          cfg.Migration.SkipIndexes,
			ExcludeAutoGenerated: cfg.Migration.ExcludeAutoGenerated,
			ForceAutoGenerated:   cfg.Migration.ForceAutoGenerated,
		},
		Progress: progress.New(quiet),
	}

	tracker, err := audit.NewTracker(ctx, dst.DB(), cfg.Target.Schema, cfg.Source.Database, cfg.Source.Addr())
	if err != nil {
		logging.Warn("audit tracking disabled: %v", err)
	} else {
		r.Audit = tracker
	}

	store, err := history.Open(cfg.Migration.HistoryPath)
	if err != nil {
		logging.Warn("run history disabled: %v", err)
		return r, func() {}
	}
	r.History = store
	return r, func() { store.Close() }
}

func runPlan(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	src, dst, err := openCatalogs(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	defer dst.Close()

	a := newAnalyzer(cfg, src, dst)

	if c.String("type") == "table" {
		table := c.String("table")
		if table == "" {
			return fmt.Errorf("--table is required with --type table")
		}
		if m := c.String("mode"); m != "recreate" && m != "delta" {
			return fmt.Errorf("unknown mode %q (want recreate or delta)", m)
		}
		impact := a.Table(ctx, table, c.String("mode") == "recreate", c.Bool("exclude-auto"))
		if c.Bool("json") {
			return printJSON(impact)
		}
		printImpact(impact)
		return nil
	}

	var result *analyze.Result
	switch c.String("type") {
	case "full":
		result, err = a.FullMigration(ctx, c.Bool("exclude-auto"))
	case "incremental":
		result, err = a.IncrementalSync(ctx)
	default:
		return fmt.Errorf("unknown plan type %q", c.String("type"))
	}
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return printJSON(result)
	}
	printPlan(result)
	return nil
}

func runFull(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	if c.Bool("exclude-auto") {
		cfg.Migration.ExcludeAutoGenerated = true
	}
	if c.Bool("skip-indexes") {
		cfg.Migration.SkipIndexes = true
	}

	ctx, cancel := interruptible()
	defer cancel()

	src, dst, err := openCatalogs(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	defer dst.Close()

	var plan *analyze.Result
	if !c.Bool("skip-plan") {
		plan, err = newAnalyzer(cfg, src, dst).FullMigration(ctx, cfg.Migration.ExcludeAutoGenerated)
		if err != nil {
			return fmt.Errorf("pre-flight analysis: %w", err)
		}
		printPlan(plan)
	}

	runner, cleanup := newRunner(ctx, cfg, src, dst, false)
	defer cleanup()
	runner.Opts.Tables = util.SplitCSV(c.String("tables"))

	result, err := runner.FullMigration(ctx, plan, c.Bool("force"))
	if err != nil {
		return err
	}
	printResult(result)
	if result.Failed > 0 {
		return fmt.Errorf("%d tables failed", result.Failed)
	}
	return nil
}

func runSync(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	src, dst, err := openCatalogs(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	defer dst.Close()

	runner, cleanup := newRunner(ctx, cfg, src, dst, false)
	defer cleanup()
	runner.Opts.Tables = util.SplitCSV(c.String("tables"))

	result, err := runner.IncrementalSync(ctx)
	if err != nil {
		return err
	}
	printResult(result)
	if result.Failed > 0 {
		return fmt.Errorf("%d tables failed", result.Failed)
	}
	return nil
}

func runTable(c *cli.Context) error {
	table := c.Args().First()
	if table == "" {
		return fmt.Errorf("table name is required")
	}

	cfg, err := setup(c)
	if err != nil {
		return err
	}
	if c.Bool("exclude-auto") {
		cfg.Migration.ExcludeAutoGenerated = true
	}
	if c.Bool("skip-indexes") {
		cfg.Migration.SkipIndexes = true
	}

	ctx, cancel := interruptible()
	defer cancel()

	src, dst, err := openCatalogs(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	defer dst.Close()

	runner, cleanup := newRunner(ctx, cfg, src, dst, false)
	defer cleanup()

	var result *sync.Result
	switch c.String("mode") {
	case "recreate":
		// Recreating discards whatever the target holds; demand an
		// explicit force when rows would be lost.
		if !c.Bool("force") {
			count, err := dst.RowCount(ctx, cfg.Target.Schema, table)
			if err == nil && count > 0 {
				return fmt.Errorf("target table %s.%s holds %d rows; pass --force to drop and recreate it",
					cfg.Target.Schema, table, count)
			}
		}
		result, err = runner.TableRecreate(ctx, table)
	case "delta":
		result, err = runner.TableDelta(ctx, table)
	default:
		return fmt.Errorf("unknown mode %q (want recreate or delta)", c.String("mode"))
	}
	if err != nil {
		return err
	}
	printResult(result)
	if result.Failed > 0 {
		return fmt.Errorf("table %s failed", table)
	}
	return nil
}

func runCompare(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	src, dst, err := openCatalogs(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	defer dst.Close()

	diff, err := compare.Schemas(ctx, src, cfg.Source.Schema, dst, cfg.Target.Schema)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return printJSON(diff)
	}
	printDiff(diff)
	return nil
}

func showHistory(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.Migration.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if runID := c.String("run"); runID != "" {
		tables, err := store.RunTables(runID)
		if err != nil {
			return err
		}
		if len(tables) == 0 {
			fmt.Printf("No table records for run %s\n", runID)
			return nil
		}
		fmt.Printf("%-30s %-10s %12s %10s\n", "TABLE", "STATUS", "ROWS", "SECONDS")
		for _, t := range tables {
			fmt.Printf("%-30s %-10s %12d %10.1f\n", t.Table, t.Status, t.Rows, t.Seconds)
			if t.Error != "" {
				fmt.Printf("    %s\n", t.Error)
			}
		}
		return nil
	}

	runs, err := store.Runs(50)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}
	fmt.Printf("%-36s %-18s %-10s %8s %12s  %s\n", "RUN", "MODE", "STATUS", "TABLES", "ROWS", "STARTED")
	for _, r := range runs {
		fmt.Printf("%-36s %-18s %-10s %8d %12d  %s\n",
			r.ID, r.Mode, r.Status, r.Tables, r.Rows, r.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPlan(r *analyze.Result) {
	fmt.Printf("\nPlan: %s (%s -> %s)\n", r.Mode, r.SourceSchema, r.TargetSchema)
	fmt.Printf("Tables: %d total, %d to create, %d to modify, %d unchanged\n",
		r.TotalTables, r.TablesToCreate, r.TablesToModify, r.TablesUnchanged)
	fmt.Printf("Rows to process: %d (~%s, est. %s)\n",
		r.TotalRows, formatBytes(r.EstimatedBytes), formatSeconds(r.EstimatedSeconds))
	fmt.Printf("Execution order: %v\n", r.Order)

	names := make([]string, 0, len(r.Impacts))
	for name := range r.Impacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		impact := r.Impacts[name]
		if impact.Risk == analyze.RiskLow && len(impact.Warnings) == 0 {
			continue
		}
		fmt.Printf("  %s: risk %s", name, impact.Risk)
		for _, f := range impact.RiskFactors {
			fmt.Printf("; %s", f)
		}
		for _, w := range impact.Warnings {
			fmt.Printf("; warning: %s", w)
		}
		fmt.Println()
	}

	for _, cycle := range r.Cycles {
		fmt.Printf("Cycle: %v\n", cycle)
	}
	for _, w := range r.CriticalWarnings {
		fmt.Printf("CRITICAL: %s\n", w)
	}
	for _, rec := range r.Recommendations {
		fmt.Printf("Recommendation: %s\n", rec)
	}

	fmt.Printf("Overall risk: %s; safe to execute: %v\n\n", r.OverallRisk, r.SafeToExecute())
}

func printImpact(i *analyze.TableImpact) {
	fmt.Printf("\nTable %s (%s)\n", i.Table, i.Action)
	fmt.Printf("Rows: %d source, %d target; %d to insert, %d to delete\n",
		i.SourceRows, i.TargetRows, i.Inserts, i.Deletes)
	if i.HasSchemaChanges() {
		fmt.Printf("Schema delta: +%v -%v ~%v\n", i.AddedColumns, i.RemovedColumns, i.ModifiedColumns)
	}
	fmt.Printf("Risk: %s\n", i.Risk)
	for _, f := range i.RiskFactors {
		fmt.Printf("  %s\n", f)
	}
	for _, w := range i.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}

func printResult(r *sync.Result) {
	fmt.Printf("\nRun %s (%s): %d completed, %d failed, %d skipped, %d rows\n",
		r.RunID, r.Mode, r.Completed, r.Failed, r.Skipped, r.Rows)
	for _, o := range r.Outcomes {
		switch {
		case o.Err != nil:
			fmt.Printf("  %s: FAILED: %v\n", o.Table, o.Err)
		case o.Skipped:
			fmt.Printf("  %s: skipped (%s)\n", o.Table, o.Reason)
		default:
			fmt.Printf("  %s: %d rows\n", o.Table, o.Rows)
		}
	}
}

func printDiff(d *compare.SchemaDiff) {
	if d.InSync() {
		fmt.Printf("Schemas %s and %s are in sync\n", d.SourceSchema, d.TargetSchema)
		return
	}
	for _, t := range d.MissingTables {
		fmt.Printf("missing in target: %s\n", t)
	}
	for _, t := range d.ExtraTables {
		fmt.Printf("only in target: %s\n", t)
	}
	for _, e := range d.MissingEnums {
		fmt.Printf("enum missing in target: %s\n", e)
	}
	for _, e := range d.ExtraEnums {
		fmt.Printf("enum only in target: %s\n", e)
	}
	for _, t := range d.Tables {
		if t.InSync() {
			continue
		}
		fmt.Printf("%s:\n", t.Table)
		for _, c := range t.AddedColumns {
			fmt.Printf("  + %s\n", c)
		}
		for _, c := range t.RemovedColumns {
			fmt.Printf("  - %s\n", c)
		}
		for _, c := range t.TypeChanged {
			fmt.Printf("  ~ %s: %s -> %s\n", c.Name, c.SourceType, c.TargetType)
		}
		for _, c := range t.NullableChanged {
			fmt.Printf("  ~ %s: nullability differs\n", c)
		}
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatSeconds(s float64) string {
	switch {
	case s < 60:
		return fmt.Sprintf("%.0fs", s)
	case s < 3600:
		return fmt.Sprintf("%.0fm%02.0fs", s/60, float64(int(s)%60))
	default:
		return fmt.Sprintf("%.1fh", s/3600)
	}
}
