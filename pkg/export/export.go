// Package export reads and writes the CSV artifacts of a scrape run: one
// file per operator and the dated change report.
package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/record"
)

// bom marks files as UTF-8 for spreadsheet tools.
const bom = "\ufeff"

// ReportPrefix starts every change report file name.
const ReportPrefix = "new_changes_"

// OperatorFile is the per-operator export path inside outDir.
func OperatorFile(outDir, operator string) string {
	return filepath.Join(outDir, utils.SafeName(operator)+".csv")
}

// ReportFile is the change report path for the given day.
func ReportFile(outDir string, day time.Time) string {
	return filepath.Join(outDir, ReportPrefix+day.Format("2006-01-02")+".csv")
}

// IsOperatorFile reports whether a file name in the output directory is a
// per-operator export rather than a report or brand artifact.
func IsOperatorFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".csv") &&
		!strings.HasPrefix(name, "new_") &&
		!strings.HasPrefix(name, "BRAND__")
}

// WriteTable writes header and rows to path as BOM-prefixed UTF-8 CSV,
// replacing any existing file.
func WriteTable(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(bom); err != nil {
		f.Close()
		return err
	}
	w := csv.NewWriter(bw)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadTable reads a CSV file, dropping a leading BOM. Rows may be ragged.
func ReadTable(path string) ([]string, [][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return ParseTable(bytes.NewReader(data))
}

// ParseTable is ReadTable over a reader.
func ParseTable(r io.Reader) ([]string, [][]string, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(bom)); err == nil && string(b) == bom {
		_, _ = br.Discard(len(bom))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	header := make([]string, len(all[0]))
	for i, h := range all[0] {
		header[i] = strings.TrimSpace(h)
	}
	return header, all[1:], nil
}

// WriteRecords writes recs with the localized headers in schema order.
// An empty slice still produces the header row.
func WriteRecords(path string, recs []record.NotificationRecord) error {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = r.Values()
	}
	return WriteTable(path, record.Headers(), rows)
}

// ReadRecords loads a record file written with either localized or schema
// column names. Unknown columns are ignored; a missing period is derived
// from the number.
func ReadRecords(path string) ([]record.NotificationRecord, error) {
	header, rows, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(header))
	for i, h := range header {
		if c, ok := record.ColumnFor(h); ok {
			cols[i] = c
		}
	}
	out := make([]record.NotificationRecord, 0, len(rows))
	for _, row := range rows {
		var rec record.NotificationRecord
		for i, v := range row {
			if i < len(cols) && cols[i] != "" {
				rec.Set(cols[i], strings.TrimSpace(v))
			}
		}
		if rec.Period == "" && rec.Number != "" {
			rec.Period = record.PeriodFromNumber(rec.Number)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadOperatorFiles aggregates every per-operator export in outDir, in file
// name order. Unreadable files are logged and skipped. Records read back get
// the operator they were searched under: the entry of operators whose file
// it is, else the file stem.
func ReadOperatorFiles(outDir string, operators []string, log utils.Logger) ([]record.NotificationRecord, error) {
	log = utils.OrNop(log)
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}
	queryOf := make(map[string]string, len(operators))
	for _, op := range operators {
		queryOf[filepath.Base(OperatorFile(outDir, op))] = op
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsOperatorFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []record.NotificationRecord
	for _, name := range names {
		recs, err := ReadRecords(filepath.Join(outDir, name))
		if err != nil {
			log.Warnf("Skipping %s: %v", name, err)
			continue
		}
		query, ok := queryOf[name]
		if !ok {
			query = strings.TrimSuffix(name, filepath.Ext(name))
		}
		for i := range recs {
			if recs[i].OperatorQuery == "" {
				recs[i].OperatorQuery = query
			}
		}
		out = append(out, recs...)
	}
	return out, nil
}

// StatusHeader is the leading column of the change report.
const StatusHeader = "สถานะ"

// ReportRow is one change report line.
type ReportRow struct {
	Status string
	Record record.NotificationRecord
}

// WriteReport writes the change report: the status column followed by the
// full schema, in fixed order.
func WriteReport(path string, rows []ReportRow) error {
	header := append([]string{StatusHeader}, record.Headers()...)
	out := make([][]string, len(rows))
	for i, r := range rows {
		rec := r.Record
		if rec.Period == "" {
			rec.Period = record.PeriodFromNumber(rec.Number)
		}
		out[i] = append([]string{r.Status}, rec.Values()...)
	}
	if err := WriteTable(path, header, out); err != nil {
		return fmt.Errorf("write change report: %w", err)
	}
	return nil
}
