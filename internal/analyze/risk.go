package analyze

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// Throughput constants for linear duration estimates, in rows per second.
// Planning aids, not guarantees.
const (
	insertRate = 5000
	updateRate = 3000
	deleteRate = 8000

	avgRowSizeBytes = 512
)

// Escalation thresholds.
const (
	largeTableRows     = 1_000_000
	veryLargeTableRows = 10_000_000
	hugeMigrationRows  = 50_000_000
	manyDependencies   = 5
)

// virtualMemory is swapped out in tests.
var virtualMemory = mem.VirtualMemory

// assessTableRisk classifies one table. Escalation is monotonic: a later
// rule can only raise the level set by an earlier one.
func assessTableRisk(impact *TableImpact) {
	var factors []string
	risk := impact.Risk

	if impact.SourceRows > largeTableRows {
		factors = append(factors, "large table (>1M rows)")
		risk = risk.Escalate(RiskMedium)
	}
	if impact.SourceRows > veryLargeTableRows {
		factors = append(factors, "very large table (>10M rows)")
		risk = risk.Escalate(RiskHigh)
	}

	if n := len(impact.RemovedColumns); n > 0 {
		factors = append(factors, fmt.Sprintf("removing %d columns", n))
		risk = risk.Escalate(RiskMedium)
	}
	if n := len(impact.ModifiedColumns); n > 0 {
		factors = append(factors, fmt.Sprintf("modifying %d column types", n))
		risk = risk.Escalate(RiskHigh)
	}

	if n := len(impact.Dependencies); n > manyDependencies {
		factors = append(factors, fmt.Sprintf("many dependencies (%d tables)", n))
		risk = risk.Escalate(RiskMedium)
	}

	if impact.Deletes > 0 {
		factors = append(factors, fmt.Sprintf("will delete %d existing rows", impact.Deletes))
		risk = risk.Escalate(RiskHigh)
	}

	impact.Risk = risk
	impact.RiskFactors = append(impact.RiskFactors, factors...)
}

// assessOverallRisk rolls per-table risk up into the plan level. Cycles
// force critical unconditionally.
func assessOverallRisk(r *Result) {
	overall := RiskLow
	drops := 0
	for _, impact := range r.Impacts {
		overall = overall.Escalate(impact.Risk)
		if impact.Action == ActionRecreate && impact.ExistsInTarget {
			drops++
		}
	}

	if len(r.Cycles) > 0 {
		r.CriticalWarnings = append(r.CriticalWarnings,
			fmt.Sprintf("circular dependencies detected in %d cycles", len(r.Cycles)))
		overall = RiskCritical
	}

	if r.TotalRows > hugeMigrationRows {
		r.CriticalWarnings = append(r.CriticalWarnings,
			fmt.Sprintf("very large migration: %d rows", r.TotalRows))
		overall = overall.Escalate(RiskHigh)
	}

	r.OverallRisk = overall

	if r.EstimatedSeconds > 3600 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("consider running during a maintenance window (estimated %.1f hours)",
				r.EstimatedSeconds/3600))
	}
	if r.Resources.DiskBytes > 10<<30 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("ensure sufficient disk space: ~%d MB required",
				r.Resources.DiskBytes/(1<<20)))
	}
	if drops > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("back up data before migration: %d tables will be dropped", drops))
	}
	if r.Resources.MemoryPressure {
		r.Recommendations = append(r.Recommendations,
			"reduce the batch size: estimated working set exceeds available memory")
	}
}

// estimateResources fills the plan's footprint estimate. Disk gets a 1.5x
// headroom multiplier for indexes and temp space.
func estimateResources(r *Result, batchSize int) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	r.Resources.MemoryBytes = int64(batchSize) * avgRowSizeBytes * int64(r.TotalTables)
	r.Resources.DiskBytes = r.EstimatedBytes + r.EstimatedBytes/2
	r.Resources.Connections = 2

	if vm, err := virtualMemory(); err == nil && vm != nil {
		r.Resources.AvailableBytes = vm.Available
		r.Resources.MemoryPressure = uint64(r.Resources.MemoryBytes) > vm.Available
	}
}
