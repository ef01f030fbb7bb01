package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/export"
)

// ErrNoBaseline marks a brand whose baseline CSV does not exist.
var ErrNoBaseline = errors.New("no baseline for brand")

// Options configures one reconciliation run.
type Options struct {
	BaselineDir string
	IncomingDir string
	OutDir      string
	// BackupDir defaults to <BaselineDir>/backup.
	BackupDir string
	// Pattern matches incoming file names; defaults to "*.xlsx".
	Pattern string
	Mode    ApplyMode

	Now func() time.Time
	Log utils.Logger
}

// BrandResult is the outcome for one incoming file.
type BrandResult struct {
	Brand    string
	Incoming string
	Diff     Diff
	Backup   string
	// Skipped is set when the brand could not be compared.
	Skipped bool
	Err     error
}

// Result is the outcome of a run.
type Result struct {
	Brands   []BrandResult
	Workbook string
	DiffsDir string
}

// Engine runs reconciliation brand by brand.
type Engine struct {
	opts Options
	log  utils.Logger
}

func NewEngine(opts Options) *Engine {
	if opts.Pattern == "" {
		opts.Pattern = "*.xlsx"
	}
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(opts.BaselineDir, "backup")
	}
	if opts.Mode == "" {
		opts.Mode = ApplyNone
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts, log: utils.OrNop(opts.Log)}
}

// Run compares every matching incoming file with the baseline of the same
// name. Brand failures are logged and recorded in the result; only
// problems with the run as a whole are returned as errors.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	files, err := filepath.Glob(filepath.Join(e.opts.IncomingDir, e.opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", e.opts.Pattern, err)
	}
	sort.Strings(files)

	res := &Result{DiffsDir: filepath.Join(e.opts.OutDir, "diffs")}
	if len(files) == 0 {
		e.log.Infof("No files matching %s in %s. Nothing to do.", e.opts.Pattern, e.opts.IncomingDir)
		return res, nil
	}
	if err := os.MkdirAll(res.DiffsDir, 0o755); err != nil {
		return nil, err
	}

	wb := NewWorkbook()
	now := e.opts.Now()
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			wb.Close()
			return res, err
		}
		br := e.runBrand(path, wb, now)
		res.Brands = append(res.Brands, br)
	}

	if wb.Empty() {
		wb.Close()
		return res, nil
	}
	res.Workbook = filepath.Join(e.opts.OutDir, export.ReportPrefix+now.Format("2006-01-02")+".xlsx")
	if err := wb.Save(res.Workbook); err != nil {
		return res, fmt.Errorf("save workbook: %w", err)
	}
	e.log.Infof("Done. Wrote: %s", res.Workbook)
	e.log.Infof("Diff CSVs: %s/<BRAND>/added.csv, removed.csv", res.DiffsDir)
	return res, nil
}

func (e *Engine) runBrand(path string, wb *Workbook, now time.Time) BrandResult {
	brand := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	br := BrandResult{Brand: brand, Incoming: path}

	baselinePath := filepath.Join(e.opts.BaselineDir, brand+".csv")
	if !fileExists(baselinePath) {
		e.log.Warnf("[SKIP] No baseline CSV for %s: %s", brand, filepath.Base(baselinePath))
		br.Skipped, br.Err = true, ErrNoBaseline
		return br
	}
	e.log.Infof("[COMPARE] %s", brand)

	base, incoming, err := e.load(baselinePath, path)
	if err != nil {
		e.log.Errorf("[SKIP] %s: %v", brand, err)
		br.Skipped, br.Err = true, err
		return br
	}
	if SameColumnSet(base.Columns, incoming.Columns) {
		incoming = Reorder(incoming, base.Columns)
	} else {
		e.log.Warnf("%s: column sets differ, comparing by position (baseline %v, incoming %v)", brand, base.Columns, incoming.Columns)
	}

	br.Diff = Compare(base, incoming)
	if err := e.writeDiffs(brand, br.Diff); err != nil {
		e.log.Errorf("%s: %v", brand, err)
	}
	if err := wb.AddBrand(brand, br.Diff); err != nil {
		e.log.Errorf("%s: %v", brand, err)
	}

	if e.opts.Mode != ApplyNone {
		backup, err := Apply(e.opts.Mode, baselinePath, e.opts.BackupDir, brand, base, incoming, br.Diff, now)
		br.Backup = backup
		if err != nil {
			e.log.Errorf("%s: apply %s: %v", brand, e.opts.Mode, err)
			br.Err = err
		} else {
			e.log.Infof("%s: baseline updated (%s), previous saved to %s", brand, e.opts.Mode, backup)
		}
	}
	return br
}

func (e *Engine) load(baselinePath, incomingPath string) (Table, Table, error) {
	base, err := LoadBaseline(baselinePath)
	if err != nil {
		return Table{}, Table{}, err
	}
	incoming, err := LoadIncoming(incomingPath)
	if err != nil {
		return Table{}, Table{}, err
	}
	return Normalize(base), Normalize(incoming), nil
}

func (e *Engine) writeDiffs(brand string, d Diff) error {
	dir := filepath.Join(e.opts.OutDir, "diffs", brand)
	if err := export.WriteTable(filepath.Join(dir, "added.csv"), d.Columns, d.Added); err != nil {
		return fmt.Errorf("write added.csv: %w", err)
	}
	if err := export.WriteTable(filepath.Join(dir, "removed.csv"), d.Columns, d.Removed); err != nil {
		return fmt.Errorf("write removed.csv: %w", err)
	}
	return nil
}
