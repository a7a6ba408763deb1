// Package metrics collects per-run transfer statistics. A Run is an
// explicit value created by the driver and carried through the invocation;
// there is no process-global tracker, so parallel runs in one process never
// share state.
package metrics

import (
	"sync"
	"time"
)

// TableStats is the outcome of one table's transfer.
type TableStats struct {
	Table     string     `json:"table"`
	TotalRows int64      `json:"total_rows"`
	Processed int64      `json:"processed"`
	Bytes     int64      `json:"bytes"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Failed    bool       `json:"failed"`
}

// Duration returns how long the table took, or time elapsed so far if it is
// still running.
func (t *TableStats) Duration() time.Duration {
	if t.EndedAt != nil {
		return t.EndedAt.Sub(t.StartedAt)
	}
	return time.Since(t.StartedAt)
}

// RowsPerSecond returns the table's observed throughput.
func (t *TableStats) RowsPerSecond() float64 {
	secs := t.Duration().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(t.Processed) / secs
}

// Run accumulates statistics for one sync invocation. Safe for concurrent
// use by the per-wave table workers.
type Run struct {
	mu sync.Mutex

	mode      string
	startedAt time.Time
	endedAt   *time.Time

	tables map[string]*TableStats

	completed int
	failed    int
	rows      int64
	bytes     int64
}

// NewRun starts a metrics run for the given mode.
func NewRun(mode string) *Run {
	return &Run{
		mode:      mode,
		startedAt: time.Now(),
		tables:    map[string]*TableStats{},
	}
}

// StartTable registers a table transfer.
func (r *Run) StartTable(table string, totalRows int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[table] = &TableStats{
		Table:     table,
		TotalRows: totalRows,
		StartedAt: time.Now(),
	}
}

// AddRows records transferred rows for a table in flight.
func (r *Run) AddRows(table string, rows, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[table]
	if !ok {
		return
	}
	t.Processed += rows
	t.Bytes += bytes
	r.rows += rows
	r.bytes += bytes
}

// CompleteTable finalizes a table's stats. failed tables still keep their
// partial row counts; committed batches stay committed.
func (r *Run) CompleteTable(table string, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[table]
	if !ok {
		return
	}
	now := time.Now()
	t.EndedAt = &now
	t.Failed = failed
	if failed {
		r.failed++
	} else {
		r.completed++
	}
}

// Finish closes the run.
func (r *Run) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.endedAt = &now
}

// Snapshot is an immutable view of a run's state.
type Snapshot struct {
	Mode            string        `json:"mode"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	TablesCompleted int           `json:"tables_completed"`
	TablesFailed    int           `json:"tables_failed"`
	Rows            int64         `json:"rows"`
	Bytes           int64         `json:"bytes"`
	RowsPerSecond   float64       `json:"rows_per_second"`
	SuccessRate     float64       `json:"success_rate"`
	Tables          []TableStats  `json:"tables"`
}

// Snapshot returns the current state as a value.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	dur := time.Since(r.startedAt)
	if r.endedAt != nil {
		dur = r.endedAt.Sub(r.startedAt)
	}

	snap := Snapshot{
		Mode:            r.mode,
		StartedAt:       r.startedAt,
		Duration:        dur,
		TablesCompleted: r.completed,
		TablesFailed:    r.failed,
		Rows:            r.rows,
		Bytes:           r.bytes,
	}
	if secs := dur.Seconds(); secs > 0 {
		snap.RowsPerSecond = float64(r.rows) / secs
	}
	if total := r.completed + r.failed; total > 0 {
		snap.SuccessRate = float64(r.completed) / float64(total) * 100
	}

	for _, t := range r.tables {
		snap.Tables = append(snap.Tables, *t)
	}
	return snap
}
