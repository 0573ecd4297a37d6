package batch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrUnreadable reports a file that is not valid UTF-8 (or UTF-16 with
	// a BOM) or not a well-formed delimited table.
	ErrUnreadable = errors.New("unreadable csv file")
	// ErrMissingColumns reports a header without DATE, CONCEPT or IMPORT.
	ErrMissingColumns = errors.New("missing required columns")
)

// table is a decoded CSV file: the trimmed header and the raw records.
type table struct {
	header  []string
	records [][]string
}

func decode(contents []byte) ([]byte, error) {
	// A BOM selects its own decoder; without one the bytes must be UTF-8.
	r := transform.NewReader(bytes.NewReader(contents), unicode.BOMOverride(encoding.UTF8Validator))
	text, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return text, nil
}

func readTable(contents []byte) (*table, error) {
	text, err := decode(contents)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(bytes.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrUnreadable, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return &table{header: header, records: records}, nil
}

func (t *table) column(name string) int {
	for i, h := range t.header {
		if h == name {
			return i
		}
	}
	return -1
}

func (t *table) require(names ...string) error {
	var missing []string
	for _, n := range names {
		if t.column(n) < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

// row maps a record by header name. Fields missing from a short record are
// absent from the map; extra fields are dropped.
func (t *table) row(i int) map[string]string {
	rec := t.records[i]
	row := make(map[string]string, len(t.header))
	for j, h := range t.header {
		if j < len(rec) {
			row[h] = rec[j]
		}
	}
	return row
}

func (t *table) encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
