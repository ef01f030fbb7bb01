// Package changes classifies scraped records against the seen baseline and
// renders the run summary.
package changes

import (
	"sort"
	"time"

	"github.com/cosreg/regwatch/pkg/export"
	"github.com/cosreg/regwatch/pkg/record"
	"github.com/cosreg/regwatch/pkg/storage"
)

const (
	StatusNewOperator = storage.ChangeNewOperator
	StatusNewItem     = storage.ChangeNewItem
)

var labels = map[string]string{
	StatusNewOperator: "ผู้ประกอบการใหม่",
	StatusNewItem:     "สินค้าใหม่ (ผู้ประกอบการเดิม)",
}

// Label is the localized status text written to the change report.
func Label(status string) string {
	if l, ok := labels[status]; ok {
		return l
	}
	return status
}

// Row is one reported record.
type Row struct {
	Status string
	Record record.NotificationRecord
}

// OperatorItems groups the new items of one existing operator.
type OperatorItems struct {
	Operator string
	Items    []record.NotificationRecord
}

// Report is the outcome of one classification. Rows lists every record of
// the new operators first, then the new items of existing operators.
type Report struct {
	NewOperators []string
	Rows         []Row

	byOperator map[string][]record.NotificationRecord
}

func (r *Report) Empty() bool { return len(r.Rows) == 0 }

// Count returns the number of rows with the given status.
func (r *Report) Count(status string) int {
	n := 0
	for _, row := range r.Rows {
		if row.Status == status {
			n++
		}
	}
	return n
}

// Samples returns up to n display names for an operator's current records.
func (r *Report) Samples(operator string, n int) []string {
	recs := r.byOperator[operator]
	if len(recs) > n {
		recs = recs[:n]
	}
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.DisplayName()
	}
	return out
}

// NewItems groups new-item rows by operator, in order of first appearance.
func (r *Report) NewItems() []OperatorItems {
	var out []OperatorItems
	idx := map[string]int{}
	for _, row := range r.Rows {
		if row.Status != StatusNewItem {
			continue
		}
		op := row.Record.OperatorKey()
		i, ok := idx[op]
		if !ok {
			i = len(out)
			idx[op] = i
			out = append(out, OperatorItems{Operator: op})
		}
		out[i].Items = append(out[i].Items, row.Record)
	}
	return out
}

// ExportRows converts the report for the CSV writer.
func (r *Report) ExportRows() []export.ReportRow {
	out := make([]export.ReportRow, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = export.ReportRow{Status: Label(row.Status), Record: row.Record}
	}
	return out
}

// Changes converts the report into history entries stamped at.
func (r *Report) Changes(at time.Time) []storage.Change {
	out := make([]storage.Change, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = storage.Change{
			OccurredAt: at,
			Operator:   row.Record.OperatorKey(),
			Number:     row.Record.Number,
			TradeName:  row.Record.DisplayName(),
			Period:     row.Record.Period,
			ChangeType: row.Status,
		}
	}
	return out
}

// Classify splits current into records of operators absent from base and
// records with unseen numbers under known operators, then extends base
// with the new operators and numbers. A record is reported at most once.
func Classify(current []record.NotificationRecord, base *storage.Snapshot) *Report {
	if base.Operators == nil {
		base.Operators = storage.Set{}
	}
	if base.Items == nil {
		base.Items = storage.Set{}
	}

	var order []string
	byOperator := map[string][]record.NotificationRecord{}
	for _, rec := range current {
		op := rec.OperatorKey()
		if op == "" {
			continue
		}
		if _, ok := byOperator[op]; !ok {
			order = append(order, op)
		}
		byOperator[op] = append(byOperator[op], rec)
	}

	rep := &Report{byOperator: byOperator}
	isNew := map[string]bool{}
	for _, op := range order {
		if !base.Operators.Has(op) {
			isNew[op] = true
			rep.NewOperators = append(rep.NewOperators, op)
		}
	}
	sort.Strings(rep.NewOperators)

	reported := storage.Set{}
	for _, op := range rep.NewOperators {
		for _, rec := range byOperator[op] {
			if rec.Number != "" && !reported.Add(rec.Number) {
				continue
			}
			rep.Rows = append(rep.Rows, Row{Status: StatusNewOperator, Record: rec})
		}
	}
	for _, op := range order {
		if isNew[op] {
			continue
		}
		for _, rec := range byOperator[op] {
			if rec.Number == "" || base.Items.Has(rec.Number) || !reported.Add(rec.Number) {
				continue
			}
			rep.Rows = append(rep.Rows, Row{Status: StatusNewItem, Record: rec})
		}
	}

	for _, op := range rep.NewOperators {
		base.Operators.Add(op)
	}
	for _, rec := range current {
		if rec.OperatorKey() != "" {
			base.Items.Add(rec.Number)
		}
	}
	return rep
}
