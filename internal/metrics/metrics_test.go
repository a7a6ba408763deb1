package metrics

import (
	"sync"
	"testing"
)

func TestRunAccumulates(t *testing.T) {
	r := NewRun("incremental_sync")

	r.StartTable("users", 100)
	r.AddRows("users", 60, 60*512)
	r.AddRows("users", 40, 40*512)
	r.CompleteTable("users", false)

	r.StartTable("orders", 10)
	r.AddRows("orders", 5, 0)
	r.CompleteTable("orders", true)

	r.Finish()
	snap := r.Snapshot()

	if snap.Rows != 105 {
		t.Errorf("rows = %d, want 105", snap.Rows)
	}
	if snap.TablesCompleted != 1 || snap.TablesFailed != 1 {
		t.Errorf("completed/failed = %d/%d, want 1/1", snap.TablesCompleted, snap.TablesFailed)
	}
	if snap.SuccessRate != 50 {
		t.Errorf("success rate = %.1f, want 50", snap.SuccessRate)
	}
	if len(snap.Tables) != 2 {
		t.Errorf("tables = %d, want 2", len(snap.Tables))
	}
}

func TestRunConcurrentTables(t *testing.T) {
	r := NewRun("full_migration")

	var wg sync.WaitGroup
	tables := []string{"a", "b", "c", "d"}
	for _, name := range tables {
		r.StartTable(name, 1000)
	}
	for _, name := range tables {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.AddRows(name, 10, 0)
			}
			r.CompleteTable(name, false)
		}(name)
	}
	wg.Wait()

	snap := r.Snapshot()
	if snap.Rows != 4000 {
		t.Errorf("rows = %d, want 4000", snap.Rows)
	}
	if snap.TablesCompleted != 4 {
		t.Errorf("completed = %d, want 4", snap.TablesCompleted)
	}
}

func TestAddRowsUnknownTableIgnored(t *testing.T) {
	r := NewRun("full_migration")
	r.AddRows("ghost", 10, 0)
	if snap := r.Snapshot(); snap.Rows != 0 {
		t.Errorf("rows = %d, want 0 for unknown table", snap.Rows)
	}
}
