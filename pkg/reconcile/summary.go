package reconcile

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Summarize renders the notification subject and body for a run. A run
// that matched no incoming file still gets a summary.
func Summarize(res *Result) (subject, body string) {
	var added, removed, compared, failed int
	var lines []string
	for _, b := range res.Brands {
		switch {
		case b.Skipped:
			failed++
			lines = append(lines, fmt.Sprintf("- %s: skipped (%v)", b.Brand, b.Err))
		case b.Err != nil:
			failed++
			lines = append(lines, fmt.Sprintf("- %s: +%d / -%d, apply failed (%v)", b.Brand, len(b.Diff.Added), len(b.Diff.Removed), b.Err))
		default:
			compared++
			added += len(b.Diff.Added)
			removed += len(b.Diff.Removed)
			lines = append(lines, fmt.Sprintf("- %s: +%d / -%d (unchanged %d)", b.Brand, len(b.Diff.Added), len(b.Diff.Removed), b.Diff.Unchanged))
		}
	}

	if len(res.Brands) == 0 {
		return "[FDA] Reconcile: no incoming files", "No incoming spreadsheet matched, nothing was compared.\n"
	}

	subject = fmt.Sprintf("[FDA] Reconcile: %d brands, +%d / -%d rows", compared, added, removed)
	if failed > 0 {
		subject += fmt.Sprintf(", %d failed", failed)
	}

	var b strings.Builder
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")
	if res.Workbook != "" {
		fmt.Fprintf(&b, "Attached: %s\n", filepath.Base(res.Workbook))
	}
	if res.DiffsDir != "" {
		fmt.Fprintf(&b, "Diff CSVs: %s\n", res.DiffsDir)
	}
	return subject, b.String()
}
