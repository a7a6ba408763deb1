// Package progress renders a terminal progress bar for row transfer.
package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker follows one sync run. When quiet, it counts rows without drawing.
type Tracker struct {
	bar     *progressbar.ProgressBar
	quiet   bool
	current atomic.Int64
	started time.Time
}

// New creates a tracker. Quiet trackers never write to the terminal, which
// keeps JSON output machine-readable.
func New(quiet bool) *Tracker {
	return &Tracker{quiet: quiet, started: time.Now()}
}

// StartTable begins a bar for one table's transfer. A zero total renders a
// spinner instead of a percentage.
func (t *Tracker) StartTable(table string, total int64) {
	if t.quiet {
		return
	}
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(fmt.Sprintf("syncing %s", table)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Add records transferred rows.
func (t *Tracker) Add(n int64) {
	t.current.Add(n)
	if t.bar != nil {
		t.bar.Add64(n)
	}
}

// Current returns the total rows counted so far across all tables.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// FinishTable completes the current table's bar.
func (t *Tracker) FinishTable() {
	if t.bar != nil {
		t.bar.Finish()
		fmt.Println()
		t.bar = nil
	}
}

// Summary prints the run total.
func (t *Tracker) Summary() {
	if t.quiet {
		return
	}
	elapsed := time.Since(t.started)
	rows := t.current.Load()
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(rows) / secs
	}
	fmt.Printf("Transferred %d rows in %s (%.0f rows/sec)\n",
		rows, elapsed.Round(time.Second), rate)
}
