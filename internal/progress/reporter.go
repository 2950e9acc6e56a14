// Package progress renders transfer progress snapshots on the console and
// formats byte counts for display.
package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/tonimelisma/adltransfer/internal/transfer"
)

// Reporter prints one line per progress snapshot. It keeps no history; each
// snapshot is rendered and dropped. Safe for concurrent use.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewReporter creates a Reporter writing to out (os.Stdout when nil).
func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}

	return &Reporter{out: out}
}

// Run reports every snapshot received on ch until ch is closed.
func (r *Reporter) Run(ch <-chan transfer.Progress) {
	for p := range ch {
		r.Report(p)
	}
}

// Report renders a single snapshot. Snapshots with nothing transferred yet
// are skipped.
func (r *Reporter) Report(p transfer.Progress) {
	line, ok := formatLine(p)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.out, line)
}

// formatLine builds the console line for p. Returns false for snapshots that
// should not be printed.
func formatLine(p transfer.Progress) (string, bool) {
	if p == nil || p.Transferred() == 0 {
		return "", false
	}

	pct := Percent(p.Transferred(), p.Total())

	switch v := p.(type) {
	case transfer.FileProgress:
		return fmt.Sprintf("%s%%, %d/%d bytes, %d segment(s)",
			pct, v.TransferredBytes, v.TotalBytes, v.TotalSegments), true
	case transfer.FolderProgress:
		return fmt.Sprintf("%s%%, %d/%d files, %d/%d bytes",
			pct, v.TransferredFiles, v.TotalFiles, v.TransferredBytes, v.TotalBytes), true
	default:
		return fmt.Sprintf("%s%%, %d/%d bytes", pct, p.Transferred(), p.Total()), true
	}
}

// Percent returns done/total*100 with at most two fractional digits. A
// midpoint rounds away from zero, so 12.125 reads "12.13".
func Percent(done, total int64) string {
	if total <= 0 {
		return "100"
	}

	pct := float64(done) / float64(total) * 100

	return formatDecimal(math.Round(pct*100) / 100)
}
