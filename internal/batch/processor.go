// Package batch drives the classifier across an uploaded statement.
package batch

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"moviments/internal/core"
)

// RowClassifier classifies one statement row; nil means unrecognized.
type RowClassifier interface {
	Classify(row core.Row, index int, refs core.Bundle, filename string) *core.Transaction
}

type Processor struct {
	classifier RowClassifier
}

func NewProcessor(c RowClassifier) *Processor {
	return &Processor{classifier: c}
}

// Process classifies every row of contents not already marked LOADED and
// returns the entries sorted by date. Structural problems (encoding, missing
// headers) fail the whole batch; a bad row only counts as unrecognized.
func (p *Processor) Process(ctx context.Context, contents []byte, filename string, refs core.Bundle) (core.BatchResult, error) {
	t, err := readTable(contents)
	if err != nil {
		return core.BatchResult{}, err
	}
	if err := t.require(core.ColumnDate, core.ColumnConcept, core.ColumnAmount); err != nil {
		return core.BatchResult{}, err
	}

	result := core.BatchResult{Entries: []core.Transaction{}}
	stats := &result.Stats
	for i := range t.records {
		if err := ctx.Err(); err != nil {
			return core.BatchResult{}, err
		}
		stats.Total++

		row := core.Row(t.row(i))
		if IsLoaded(row) {
			stats.AlreadyLoaded++
			continue
		}
		tx := p.classifyRow(ctx, row, i, refs, filename)
		if tx == nil {
			stats.Unrecognized++
			continue
		}
		result.Entries = append(result.Entries, *tx)
		stats.Count(tx.Type)
	}

	// ISO dates order lexically.
	sort.SliceStable(result.Entries, func(a, b int) bool {
		return result.Entries[a].Date < result.Entries[b].Date
	})

	slog.DebugContext(ctx, "Batch processed",
		"filename", filename,
		"total", stats.Total,
		"emitted", stats.Emitted,
		"already_loaded", stats.AlreadyLoaded,
		"unrecognized", stats.Unrecognized)

	return result, nil
}

func (p *Processor) classifyRow(ctx context.Context, row core.Row, index int, refs core.Bundle, filename string) (tx *core.Transaction) {
	defer func() {
		if r := recover(); r != nil {
			slog.WarnContext(ctx, "Row classification failed", "filename", filename, "row", index, "panic", r)
			tx = nil
		}
	}()
	return p.classifier.Classify(row, index, refs, filename)
}

// IsLoaded reports whether the row's LOADED flag is "true" or "1".
func IsLoaded(row core.Row) bool {
	v := strings.ToLower(strings.TrimSpace(row[core.ColumnLoaded]))
	return v == "true" || v == "1"
}
