package schema

import (
	"strings"

	"pgsync/internal/catalog"
)

// autoGenNames is the lexicon of column names conventionally assigned by the
// database rather than the application.
var autoGenNames = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"created_on": true,
	"updated_on": true,
	"timestamp":  true,
}

// IsAutoGenerated reports whether a column looks auto-generated: a structural
// name, a sequence/UUID/timestamp default, a serial type alias, or a
// sequence-backed reference key suffix. The classification is a heuristic and
// advisory only; callers needing certainty should use an explicit override
// list (see Options.ForceAutoGenerated).
func IsAutoGenerated(c catalog.Column) bool {
	name := strings.ToLower(c.Name)
	def := strings.ToLower(c.Default)
	dataType := strings.ToLower(c.DataType)

	if autoGenNames[name] {
		return true
	}

	if strings.HasSuffix(name, "_id") &&
		(strings.Contains(def, "nextval") || strings.Contains(dataType, "serial")) {
		return true
	}

	if def != "" {
		if strings.Contains(def, "nextval") ||
			strings.Contains(def, "uuid_generate") ||
			strings.Contains(def, "now()") ||
			strings.Contains(def, "current_timestamp") {
			return true
		}
	}

	return strings.Contains(dataType, "serial")
}
