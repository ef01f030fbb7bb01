package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cosreg/regwatch/pkg/export"
)

func writeXLSX(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := stringsRow(r)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func keys(rows [][]string) map[string]bool {
	out := map[string]bool{}
	for _, r := range rows {
		out[rowKey(r)] = true
	}
	return out
}

func TestNormalize(t *testing.T) {
	got := Normalize(Table{
		Columns: []string{" sku ", "name"},
		Rows: [][]string{
			{" A1 ", "nan"},
			{"A1", ""},
			{"B2", "<NA>"},
			{"C3"},
			{"D4", "None", "extra"},
		},
	})
	require.Equal(t, []string{"sku", "name"}, got.Columns)
	require.Equal(t, [][]string{{"A1", ""}, {"B2", ""}, {"C3", ""}, {"D4", ""}}, got.Rows)
}

func TestCompareSetAlgebra(t *testing.T) {
	base := Normalize(Table{Columns: []string{"a", "b"}, Rows: [][]string{{"1", "x"}, {"2", "y"}, {"3", "z"}}})
	inc := Normalize(Table{Columns: []string{"a", "b"}, Rows: [][]string{{"2", "y"}, {"3", "z"}, {"4", "w"}, {"4", "w"}}})

	d := Compare(base, inc)
	require.Equal(t, [][]string{{"4", "w"}}, d.Added)
	require.Equal(t, [][]string{{"1", "x"}}, d.Removed)
	require.Equal(t, 2, d.Unchanged)

	added, removed := keys(d.Added), keys(d.Removed)
	for k := range added {
		require.False(t, removed[k], "added and removed overlap")
	}
	require.Equal(t, len(inc.Rows), len(d.Added)+d.Unchanged)
}

func TestReorderWhenColumnSetsMatch(t *testing.T) {
	inc := Table{Columns: []string{"b", "a"}, Rows: [][]string{{"x", "1"}}}
	require.True(t, SameColumnSet([]string{"a", "b"}, inc.Columns))
	require.False(t, SameColumnSet([]string{"a", "c"}, inc.Columns))
	got := Reorder(inc, []string{"a", "b"})
	require.Equal(t, [][]string{{"1", "x"}}, got.Rows)
}

func TestParseApplyMode(t *testing.T) {
	for in, want := range map[string]ApplyMode{"": ApplyNone, "none": ApplyNone, "Replace": ApplyReplace, " append ": ApplyAppend} {
		got, err := ParseApplyMode(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseApplyMode("merge")
	require.Error(t, err)
}

type fixture struct {
	baseline, incoming, out string
}

func newFixture(t *testing.T) fixture {
	root := t.TempDir()
	fx := fixture{
		baseline: filepath.Join(root, "baseline"),
		incoming: filepath.Join(root, "incoming"),
		out:      filepath.Join(root, "out"),
	}
	require.NoError(t, os.MkdirAll(fx.baseline, 0o755))
	require.NoError(t, os.MkdirAll(fx.incoming, 0o755))
	return fx
}

var (
	fixedNow    = time.Date(2025, 6, 1, 9, 30, 15, 0, time.UTC)
	baseCSV     = "sku,name\nA1,Cream\nB2,Serum\n"
	incomingXLS = [][]string{{"name", "sku"}, {"Serum", "B2"}, {"Toner", "C3"}, {"NULL", "D4"}}
)

func (fx fixture) engine(mode ApplyMode) *Engine {
	return NewEngine(Options{
		BaselineDir: fx.baseline,
		IncomingDir: fx.incoming,
		OutDir:      fx.out,
		Mode:        mode,
		Now:         func() time.Time { return fixedNow },
	})
}

func TestEngineReportOnly(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(fx.baseline, "Glow.csv"), []byte(baseCSV), 0o644))
	writeXLSX(t, filepath.Join(fx.incoming, "Glow.xlsx"), incomingXLS)
	writeXLSX(t, filepath.Join(fx.incoming, "Orphan.xlsx"), incomingXLS)

	res, err := fx.engine(ApplyNone).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Brands, 2)

	glow := res.Brands[0]
	require.Equal(t, "Glow", glow.Brand)
	require.False(t, glow.Skipped)
	require.Equal(t, []string{"sku", "name"}, glow.Diff.Columns)
	require.Equal(t, [][]string{{"C3", "Toner"}, {"D4", ""}}, glow.Diff.Added)
	require.Equal(t, [][]string{{"A1", "Cream"}}, glow.Diff.Removed)
	require.Equal(t, 1, glow.Diff.Unchanged)

	orphan := res.Brands[1]
	require.True(t, orphan.Skipped)
	require.ErrorIs(t, orphan.Err, ErrNoBaseline)

	data, err := os.ReadFile(filepath.Join(fx.baseline, "Glow.csv"))
	require.NoError(t, err)
	require.Equal(t, baseCSV, string(data), "mode none must not touch the baseline")

	header, rows, err := export.ReadTable(filepath.Join(fx.out, "diffs", "Glow", "removed.csv"))
	require.NoError(t, err)
	require.Equal(t, []string{"sku", "name"}, header)
	require.Equal(t, [][]string{{"A1", "Cream"}}, rows)

	require.Equal(t, filepath.Join(fx.out, "new_changes_2025-06-01.xlsx"), res.Workbook)
	f, err := excelize.OpenFile(res.Workbook)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{"Glow__added", "Glow__removed", "Glow__unchanged_count", "__SUMMARY__"}, f.GetSheetList())
	summary, err := f.GetRows("__SUMMARY__")
	require.NoError(t, err)
	require.Equal(t, []string{"Glow", "1", "2", "1", "3", "2"}, summary[1])
}

func TestEngineReplace(t *testing.T) {
	fx := newFixture(t)
	basePath := filepath.Join(fx.baseline, "Glow.csv")
	require.NoError(t, os.WriteFile(basePath, []byte(baseCSV), 0o644))
	writeXLSX(t, filepath.Join(fx.incoming, "Glow.xlsx"), incomingXLS)

	res, err := fx.engine(ApplyReplace).Run(context.Background())
	require.NoError(t, err)
	br := res.Brands[0]
	require.NoError(t, br.Err)

	require.Equal(t, filepath.Join(fx.baseline, "backup", "Glow__20250601_093015.csv"), br.Backup)
	prior, err := os.ReadFile(br.Backup)
	require.NoError(t, err)
	require.Equal(t, baseCSV, string(prior))

	got, err := LoadBaseline(basePath)
	require.NoError(t, err)
	require.Equal(t, []string{"sku", "name"}, got.Columns)
	require.Equal(t, keys([][]string{{"B2", "Serum"}, {"C3", "Toner"}, {"D4", ""}}), keys(got.Rows))
	require.Len(t, got.Rows, 3)
}

func TestEngineAppendNeverDeletes(t *testing.T) {
	fx := newFixture(t)
	basePath := filepath.Join(fx.baseline, "Glow.csv")
	require.NoError(t, os.WriteFile(basePath, []byte(baseCSV), 0o644))
	writeXLSX(t, filepath.Join(fx.incoming, "Glow.xlsx"), incomingXLS)

	res, err := fx.engine(ApplyAppend).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Brands[0].Err)

	got, err := LoadBaseline(basePath)
	require.NoError(t, err)
	want := [][]string{{"A1", "Cream"}, {"B2", "Serum"}, {"C3", "Toner"}, {"D4", ""}}
	require.Equal(t, want, got.Rows)

	// A second append of the same snapshot is a no-op on the row set.
	_, err = fx.engine(ApplyAppend).Run(context.Background())
	require.NoError(t, err)
	got, err = LoadBaseline(basePath)
	require.NoError(t, err)
	require.Equal(t, want, got.Rows)

	backups, err := os.ReadDir(filepath.Join(fx.baseline, "backup"))
	require.NoError(t, err)
	require.Len(t, backups, 2, "same-second backups must not overwrite each other")
}

func TestEngineNothingToDo(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.engine(ApplyNone).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Brands)
	require.Empty(t, res.Workbook)
}

func TestEngineCSVPatternAndMisalignedColumns(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(fx.baseline, "Glow.csv"), []byte(baseCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(fx.incoming, "Glow.csv"), []byte("sku,title\nA1,Cream\n"), 0o644))

	e := fx.engine(ApplyNone)
	e.opts.Pattern = "*.csv"
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	d := res.Brands[0].Diff
	require.Equal(t, 1, d.Unchanged, "differing column sets compare by position")
	require.Equal(t, [][]string{{"B2", "Serum"}}, d.Removed)
}

func TestSheetNamesFitLimit(t *testing.T) {
	wb := NewWorkbook()
	defer wb.Close()
	long := "A very long brand name that exceeds limits"
	a := wb.sheetName(long, "__unchanged_count")
	require.LessOrEqual(t, len([]rune(a)), maxSheetName)
	wb.names[strings.ToLower(a)] = true
	b := wb.sheetName(long, "__unchanged_count")
	require.NotEqual(t, a, b)
	require.LessOrEqual(t, len([]rune(b)), maxSheetName)
	require.Equal(t, "a_b__added", wb.sheetName("a/b", "__added"))
}

func TestBrandsDifferingOnlyInCaseGetOwnSheets(t *testing.T) {
	wb := NewWorkbook()
	require.NoError(t, wb.AddBrand("Acme", Diff{Columns: []string{"c"}, Added: [][]string{{"x"}}}))
	require.NoError(t, wb.AddBrand("ACME", Diff{Columns: []string{"c"}, Added: [][]string{{"y"}}}))
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, wb.Save(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Len(t, sheets, 7)
	lower := map[string]bool{}
	for _, s := range sheets {
		require.False(t, lower[strings.ToLower(s)], "duplicate sheet %s", s)
		lower[strings.ToLower(s)] = true
	}

	first, err := f.GetRows("Acme__added")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"c"}, {"x"}}, first)

	var second [][]string
	for _, s := range sheets {
		if strings.HasSuffix(s, "__added") && s != "Acme__added" {
			second, err = f.GetRows(s)
			require.NoError(t, err)
		}
	}
	require.Equal(t, [][]string{{"c"}, {"y"}}, second)
}

func TestSummarizeRun(t *testing.T) {
	subject, body := Summarize(&Result{})
	require.Equal(t, "[FDA] Reconcile: no incoming files", subject)
	require.NotEmpty(t, body)

	res := &Result{
		Brands: []BrandResult{
			{Brand: "ACME", Diff: Diff{Added: [][]string{{"a"}, {"b"}}, Removed: [][]string{{"c"}}, Unchanged: 4}},
			{Brand: "GLOW", Skipped: true, Err: ErrNoBaseline},
		},
		Workbook: filepath.Join("out", "new_changes_2025-03-09.xlsx"),
		DiffsDir: filepath.Join("out", "diffs"),
	}
	subject, body = Summarize(res)
	require.Equal(t, "[FDA] Reconcile: 1 brands, +2 / -1 rows, 1 failed", subject)
	require.Contains(t, body, "- ACME: +2 / -1 (unchanged 4)")
	require.Contains(t, body, "- GLOW: skipped")
	require.Contains(t, body, "Attached: new_changes_2025-03-09.xlsx")
}
