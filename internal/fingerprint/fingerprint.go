// Package fingerprint produces content-addressed row digests used to diff
// table contents without primary keys. Two rows with equal fingerprints are
// treated as the same row.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"pgsync/internal/catalog"
)

// floatDigits bounds the precision that participates in a fingerprint so
// driver-level rounding noise does not produce spurious diffs.
const floatDigits = 8

// Canonicalize maps a driver-provided value onto a stable representation.
// The mapping is idempotent: canonicalizing an already canonical value is a
// no-op.
func Canonicalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case float64:
		return roundFloat(val)
	case float32:
		return roundFloat(float64(val))
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return roundFloat(f.Float64)
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return hex.EncodeToString(val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return v
	}
}

func roundFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	shift := math.Pow10(floatDigits)
	return math.Round(f*shift) / shift
}

// Fingerprint digests the given column subset of a row: canonicalized values
// are serialized as compact key-sorted JSON and hashed with SHA-256. Columns
// absent from the row contribute null, so a row fetched without a column and
// a row holding NULL in it fingerprint identically.
func Fingerprint(row catalog.Row, columns []string) (string, error) {
	subset := make(map[string]any, len(columns))
	for _, col := range columns {
		subset[col] = Canonicalize(row[col])
	}

	// json.Marshal writes map keys in sorted order, giving a stable byte
	// stream for equal content.
	b, err := json.Marshal(subset)
	if err != nil {
		return "", fmt.Errorf("fingerprint serialization: %w", err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Index fingerprints every row and returns the set of digests. Duplicate
// rows collapse into one entry.
func Index(rows []catalog.Row, columns []string) (map[string]bool, error) {
	set := make(map[string]bool, len(rows))
	for _, row := range rows {
		fp, err := Fingerprint(row, columns)
		if err != nil {
			return nil, err
		}
		set[fp] = true
	}
	return set, nil
}
