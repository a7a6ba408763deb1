// Package analyze computes migration plans without touching the destination:
// per-table impact, dependency ordering, risk classification, and resource
// estimates. Drivers consult the result before any destructive operation.
package analyze

import (
	"time"

	"pgsync/internal/depgraph"
)

// RiskLevel is a qualitative escalation tier summarizing the blast radius of
// a planned operation.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the level as its name so reports stay readable.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// Escalate returns the higher of the two levels. Risk only ever goes up.
func (r RiskLevel) Escalate(to RiskLevel) RiskLevel {
	if to > r {
		return to
	}
	return r
}

// Action is what a driver would do to a table.
type Action string

const (
	ActionCreate   Action = "create"
	ActionRecreate Action = "recreate"
	ActionInsert   Action = "insert"
)

// TableImpact is the projected effect of an operation on one table.
// Constructed fresh per analysis, never mutated afterwards.
type TableImpact struct {
	Table  string `json:"table"`
	Action Action `json:"action"`

	ExistsInTarget bool  `json:"exists_in_target"`
	SourceRows     int64 `json:"source_rows"`
	TargetRows     int64 `json:"target_rows"`

	Inserts int64 `json:"inserts"`
	Updates int64 `json:"updates"`
	Deletes int64 `json:"deletes"`

	AddedColumns    []string `json:"added_columns,omitempty"`
	RemovedColumns  []string `json:"removed_columns,omitempty"`
	ModifiedColumns []string `json:"modified_columns,omitempty"`

	Dependencies []string `json:"dependencies,omitempty"`

	Risk        RiskLevel `json:"risk"`
	RiskFactors []string  `json:"risk_factors,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`

	EstimatedBytes   int64   `json:"estimated_bytes"`
	EstimatedSeconds float64 `json:"estimated_seconds"`
}

// HasSchemaChanges reports whether any column delta was detected.
func (i *TableImpact) HasSchemaChanges() bool {
	return len(i.AddedColumns) > 0 || len(i.RemovedColumns) > 0 || len(i.ModifiedColumns) > 0
}

// NetRowChange is the projected change in destination row count.
func (i *TableImpact) NetRowChange() int64 {
	return i.Inserts - i.Deletes
}

// Resources is the estimated footprint of executing the plan.
type Resources struct {
	MemoryBytes    int64  `json:"memory_bytes"`
	DiskBytes      int64  `json:"disk_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`

	// MemoryPressure is set when the estimate exceeds the memory actually
	// available on this host at analysis time.
	MemoryPressure bool `json:"memory_pressure"`

	Connections int `json:"connections"`
}

// Result is the complete pre-flight plan for one analysis run.
type Result struct {
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"started_at"`

	SourceSchema string `json:"source_schema"`
	TargetSchema string `json:"target_schema"`

	TotalTables     int `json:"total_tables"`
	TablesToCreate  int `json:"tables_to_create"`
	TablesToModify  int `json:"tables_to_modify"`
	TablesUnchanged int `json:"tables_unchanged"`

	TotalRows        int64   `json:"total_rows"`
	EstimatedBytes   int64   `json:"estimated_bytes"`
	EstimatedSeconds float64 `json:"estimated_seconds"`

	Impacts map[string]*TableImpact `json:"impacts"`

	Edges  []depgraph.Edge `json:"-"`
	Order  []string        `json:"execution_order"`
	Cycles [][]string      `json:"cycles,omitempty"`

	OverallRisk      RiskLevel `json:"overall_risk"`
	CriticalWarnings []string  `json:"critical_warnings,omitempty"`
	Recommendations  []string  `json:"recommendations,omitempty"`

	Resources Resources `json:"resources"`
}

// SafeToExecute is the hard gate drivers must honor before a destructive
// operation: false on critical risk, any cycle, or any critical warning.
func (r *Result) SafeToExecute() bool {
	return r.OverallRisk != RiskCritical &&
		len(r.Cycles) == 0 &&
		len(r.CriticalWarnings) == 0
}
