// Package reconcile diffs per-brand incoming spreadsheets against stored
// CSV baselines and optionally commits them.
//
// Append mode never removes rows from a baseline: rows that disappear from
// later snapshots stay in the baseline until it is replaced.
package reconcile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cosreg/regwatch/pkg/export"
)

// Table is a header row plus string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Cell values treated as missing.
var nullMarkers = map[string]bool{
	"nan":  true,
	"NaN":  true,
	"None": true,
	"NULL": true,
	"<NA>": true,
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	if nullMarkers[v] {
		return ""
	}
	return v
}

// rowKey is the tuple identity of a row.
func rowKey(row []string) string {
	return strings.Join(row, "\x1f")
}

// Normalize trims headers and cells, blanks null markers, pads or cuts rows
// to the header width and drops exact duplicate rows, keeping the first.
func Normalize(t Table) Table {
	out := Table{Columns: make([]string, len(t.Columns))}
	for i, c := range t.Columns {
		out.Columns[i] = strings.TrimSpace(c)
	}
	seen := make(map[string]bool, len(t.Rows))
	for _, r := range t.Rows {
		row := make([]string, len(out.Columns))
		for i := range row {
			if i < len(r) {
				row[i] = cleanCell(r[i])
			}
		}
		k := rowKey(row)
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Rows = append(out.Rows, row)
	}
	return out
}

// SameColumnSet reports whether a and b hold the same column names,
// ignoring order.
func SameColumnSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	count := map[string]int{}
	for _, c := range a {
		count[c]++
	}
	for _, c := range b {
		count[c]--
		if count[c] < 0 {
			return false
		}
	}
	return true
}

// Reorder returns t with its columns in the order of cols. cols must be a
// permutation of t.Columns.
func Reorder(t Table, cols []string) Table {
	pos := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		pos[c] = i
	}
	out := Table{Columns: append([]string(nil), cols...), Rows: make([][]string, len(t.Rows))}
	for r, row := range t.Rows {
		nr := make([]string, len(cols))
		for i, c := range cols {
			if j, ok := pos[c]; ok && j < len(row) {
				nr[i] = row[j]
			}
		}
		out.Rows[r] = nr
	}
	return out
}

// LoadBaseline reads a baseline CSV with every cell as a string.
func LoadBaseline(path string) (Table, error) {
	header, rows, err := export.ReadTable(path)
	if err != nil {
		return Table{}, fmt.Errorf("read baseline %s: %w", filepath.Base(path), err)
	}
	return Table{Columns: header, Rows: rows}, nil
}

// LoadIncoming reads the first sheet of a spreadsheet, or a CSV file.
func LoadIncoming(path string) (Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		header, rows, err := export.ReadTable(path)
		if err != nil {
			return Table{}, fmt.Errorf("read incoming %s: %w", filepath.Base(path), err)
		}
		return Table{Columns: header, Rows: rows}, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("open incoming %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("incoming %s has no sheets", filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %q of %s: %w", sheets[0], filepath.Base(path), err)
	}
	if len(rows) == 0 {
		return Table{}, nil
	}
	return Table{Columns: rows[0], Rows: rows[1:]}, nil
}
