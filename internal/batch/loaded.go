package batch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"moviments/internal/core"
)

var (
	ErrRowNotFound = errors.New("csv row not found")
	ErrRowMismatch = errors.New("csv row does not match transaction")
)

// RowCheck identifies the row expected at an index. Empty fields are not
// checked. Date and Amount accept either the raw statement text or the
// normalized form carried by a transaction.
type RowCheck struct {
	Date    string
	Concept string
	Amount  string
}

// CheckFor builds the identity check of a classified transaction.
func CheckFor(tx core.Transaction) RowCheck {
	return RowCheck{Date: tx.Date, Concept: tx.Concept, Amount: tx.Amount}
}

func (c RowCheck) matches(row core.Row) bool {
	if c.Date != "" && !sameDate(row[core.ColumnDate], c.Date) {
		return false
	}
	if c.Concept != "" && row[core.ColumnConcept] != c.Concept {
		return false
	}
	if c.Amount != "" && !sameAmount(row[core.ColumnAmount], c.Amount) {
		return false
	}
	return true
}

func sameDate(raw, want string) bool {
	if raw == want {
		return true
	}
	d, err := core.ParseStatementDate(raw)
	return err == nil && d.ISO() == strings.TrimSpace(want)
}

func sameAmount(raw, want string) bool {
	if raw == want {
		return true
	}
	a, err := core.ParseAmount(raw)
	if err != nil {
		return false
	}
	b, err := core.ParseAmount(want)
	return err == nil && a.Abs().Equal(b.Abs())
}

// MarkLoaded sets LOADED=true on data row index of contents, adding the
// column when the file has none, and returns the rewritten file.
func MarkLoaded(contents []byte, index int, check RowCheck) ([]byte, error) {
	t, err := readTable(contents)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(t.records) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrRowNotFound, index, len(t.records))
	}
	if !check.matches(core.Row(t.row(index))) {
		return nil, fmt.Errorf("%w: index %d", ErrRowMismatch, index)
	}

	return t.setLoaded(index)
}

// setLoaded flags the given data rows, adding the LOADED column when the
// file has none, and encodes the table.
func (t *table) setLoaded(indexes ...int) ([]byte, error) {
	col := t.column(core.ColumnLoaded)
	if col < 0 {
		t.header = append(t.header, core.ColumnLoaded)
		col = len(t.header) - 1
	}
	for i, rec := range t.records {
		for len(rec) < len(t.header) {
			rec = append(rec, "")
		}
		t.records[i] = rec
	}
	for _, i := range indexes {
		t.records[i][col] = "true"
	}

	out, err := t.encode()
	if err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return out, nil
}

// rowKey identifies a statement row across exports of the same account.
type rowKey struct {
	date, concept, amount string
}

func keyOf(row core.Row) rowKey {
	return rowKey{
		date:    strings.TrimSpace(row[core.ColumnDate]),
		concept: strings.TrimSpace(row[core.ColumnConcept]),
		amount:  strings.TrimSpace(row[core.ColumnAmount]),
	}
}

// CarryLoaded returns next with LOADED set on every row that was loaded in
// prev, matching rows on DATE, CONCEPT and IMPORT. Identical rows are
// matched as many times as prev has them loaded. It also returns the
// indexes of next that end up loaded. next is returned unchanged when no
// flag has to be added.
func CarryLoaded(prev, next []byte) ([]byte, []int, error) {
	nt, err := readTable(next)
	if err != nil {
		return nil, nil, err
	}
	remaining := map[rowKey]int{}
	if pt, err := readTable(prev); err == nil {
		for i := range pt.records {
			row := core.Row(pt.row(i))
			if IsLoaded(row) {
				remaining[keyOf(row)]++
			}
		}
	}

	loaded := []int{}
	for i := range nt.records {
		row := core.Row(nt.row(i))
		if IsLoaded(row) {
			loaded = append(loaded, i)
			if k := keyOf(row); remaining[k] > 0 {
				remaining[k]--
			}
		}
	}
	var carried []int
	for i := range nt.records {
		row := core.Row(nt.row(i))
		if IsLoaded(row) {
			continue
		}
		if k := keyOf(row); remaining[k] > 0 {
			remaining[k]--
			carried = append(carried, i)
		}
	}
	if len(carried) == 0 {
		return next, loaded, nil
	}

	out, err := nt.setLoaded(carried...)
	if err != nil {
		return nil, nil, err
	}
	loaded = append(loaded, carried...)
	sort.Ints(loaded)
	return out, loaded, nil
}
