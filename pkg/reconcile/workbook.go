package reconcile

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	maxSheetName = 31
	summarySheet = "__SUMMARY__"
)

var summaryHeader = []string{"brand", "unchanged_rows", "added_rows", "removed_rows", "incoming_rows", "baseline_rows"}

var badSheetChars = regexp.MustCompile(`[\[\]:*?/\\]`)

// Workbook accumulates the per-brand sheets of one reconciliation run.
type Workbook struct {
	f       *excelize.File
	names   map[string]bool // lower-cased; sheet names are case-insensitive
	summary []Summary
}

// Summary is one brand's row in the summary sheet.
type Summary struct {
	Brand     string
	Unchanged int
	Added     int
	Removed   int
	Incoming  int
	Baseline  int
}

func (s Summary) values() []interface{} {
	return []interface{}{s.Brand, s.Unchanged, s.Added, s.Removed, s.Incoming, s.Baseline}
}

func NewWorkbook() *Workbook {
	return &Workbook{f: excelize.NewFile(), names: map[string]bool{}}
}

// AddBrand writes the added, removed and count sheets for one brand.
func (w *Workbook) AddBrand(brand string, d Diff) error {
	if err := w.writeSheet(w.sheetName(brand, "__added"), stringsRow(d.Columns), rowsOf(d.Added)); err != nil {
		return err
	}
	if err := w.writeSheet(w.sheetName(brand, "__removed"), stringsRow(d.Columns), rowsOf(d.Removed)); err != nil {
		return err
	}
	s := Summary{
		Brand:     brand,
		Unchanged: d.Unchanged,
		Added:     len(d.Added),
		Removed:   len(d.Removed),
		Incoming:  d.IncomingRows,
		Baseline:  d.BaselineRows,
	}
	w.summary = append(w.summary, s)
	return w.writeSheet(w.sheetName(brand, "__unchanged_count"), stringsRow(summaryHeader), [][]interface{}{s.values()})
}

// Empty reports whether no brand was added.
func (w *Workbook) Empty() bool { return len(w.summary) == 0 }

// Save writes the summary sheet, sorted by brand, and saves the file.
func (w *Workbook) Save(path string) error {
	defer w.f.Close()
	sort.Slice(w.summary, func(i, j int) bool { return w.summary[i].Brand < w.summary[j].Brand })
	rows := make([][]interface{}, len(w.summary))
	for i, s := range w.summary {
		rows[i] = s.values()
	}
	if err := w.writeSheet(summarySheet, stringsRow(summaryHeader), rows); err != nil {
		return err
	}
	if err := w.f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	return w.f.SaveAs(path)
}

func (w *Workbook) writeSheet(name string, header []interface{}, rows [][]interface{}) error {
	if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("add sheet %q: %w", name, err)
	}
	w.names[strings.ToLower(name)] = true
	all := append([][]interface{}{header}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := w.f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write sheet %q: %w", name, err)
		}
	}
	return nil
}

// sheetName builds a legal, unique sheet name, shortening the brand so the
// suffix survives the length limit.
func (w *Workbook) sheetName(brand, suffix string) string {
	base := badSheetChars.ReplaceAllString(brand, "_")
	for utf8.RuneCountInString(base)+utf8.RuneCountInString(suffix) > maxSheetName {
		r := []rune(base)
		base = string(r[:len(r)-1])
	}
	name := base + suffix
	for n := 2; w.taken(name); n++ {
		tag := fmt.Sprintf("~%d", n)
		r := []rune(base)
		for len(r)+utf8.RuneCountInString(tag+suffix) > maxSheetName {
			r = r[:len(r)-1]
		}
		name = string(r) + tag + suffix
	}
	return name
}

func (w *Workbook) taken(name string) bool {
	key := strings.ToLower(name)
	return w.names[key] || key == "sheet1" || key == strings.ToLower(summarySheet)
}

func stringsRow(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func rowsOf(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = stringsRow(r)
	}
	return out
}

// Close releases the workbook without saving it.
func (w *Workbook) Close() error { return w.f.Close() }
