package sync

import (
	"errors"
	"fmt"
)

// ErrUnsafePlan gates destructive runs whose pre-flight analysis found
// cycles, critical risk, or critical warnings.
var ErrUnsafePlan = errors.New("plan is not safe to execute")

// NoPrimaryKeyError marks strategies that need a stable identity column
// hitting a table without one. Fatal only for those strategies.
type NoPrimaryKeyError struct {
	Table string
}

func (e *NoPrimaryKeyError) Error() string {
	return fmt.Sprintf("table %s has no primary key", e.Table)
}

// RowTransferError wraps an insert failure. Batches committed before the
// failure remain committed; the remaining rows of the table are abandoned.
type RowTransferError struct {
	Table string
	Err   error
}

func (e *RowTransferError) Error() string {
	return fmt.Sprintf("row transfer for %s: %v", e.Table, e.Err)
}

func (e *RowTransferError) Unwrap() error {
	return e.Err
}
