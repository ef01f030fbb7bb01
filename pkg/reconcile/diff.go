package reconcile

// Diff is the row-set comparison of one brand. Rows are compared as exact
// tuples after normalization.
type Diff struct {
	Columns      []string
	Added        [][]string
	Removed      [][]string
	Unchanged    int
	BaselineRows int
	IncomingRows int
}

// Compare computes added = incoming - baseline, removed = baseline -
// incoming and the size of their intersection. Both tables must already
// be normalized and aligned. Row order follows the source tables.
func Compare(base, incoming Table) Diff {
	d := Diff{
		Columns:      base.Columns,
		BaselineRows: len(base.Rows),
		IncomingRows: len(incoming.Rows),
	}
	inBase := make(map[string]bool, len(base.Rows))
	for _, r := range base.Rows {
		inBase[rowKey(r)] = true
	}
	inIncoming := make(map[string]bool, len(incoming.Rows))
	for _, r := range incoming.Rows {
		k := rowKey(r)
		inIncoming[k] = true
		if inBase[k] {
			d.Unchanged++
		} else {
			d.Added = append(d.Added, r)
		}
	}
	for _, r := range base.Rows {
		if !inIncoming[rowKey(r)] {
			d.Removed = append(d.Removed, r)
		}
	}
	return d
}
