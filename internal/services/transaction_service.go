// Package services orchestrates statement processing, record creation and
// the loaded-row bookkeeping across the store, the ledger and the queue.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"moviments/internal/batch"
	"moviments/internal/core"
	"moviments/internal/store"
)

// QueuedPrefix marks refs of records handed to the worker.
const QueuedPrefix = "queued:"

type (
	// Ledger keeps durable uploads and the outbox.
	Ledger interface {
		SaveUpload(ctx context.Context, filename string, contents []byte) ([]byte, error)
		GetUpload(ctx context.Context, filename string) ([]byte, error)
		MarkRowLoaded(ctx context.Context, filename string, index int, check batch.RowCheck) error
		Enqueue(ctx context.Context, tx core.Transaction) (string, error)
	}

	Publisher interface {
		PublishRecordSync(ctx context.Context, id string) error
	}

	invalidator interface {
		Invalidate()
	}
)

// Deps wires a TransactionService. Ledger and Publisher are optional:
// without a ledger uploads are processed as given and nothing is marked,
// without a publisher records are created synchronously.
type Deps struct {
	Store      store.RecordWriter
	References store.ReferenceReader
	Processor  *batch.Processor
	Ledger     Ledger
	Publisher  Publisher
}

type TransactionService struct {
	writer    store.RecordWriter
	refs      store.ReferenceReader
	processor *batch.Processor
	ledger    Ledger
	publisher Publisher
}

func NewTransactionService(d Deps) *TransactionService {
	return &TransactionService{
		writer:    d.Store,
		refs:      d.References,
		processor: d.Processor,
		ledger:    d.Ledger,
		publisher: d.Publisher,
	}
}

// Process stores the upload and classifies its durable copy against the
// current reference lists.
func (s *TransactionService) Process(ctx context.Context, filename string, contents []byte) (core.BatchResult, error) {
	if s.processor == nil || s.refs == nil {
		return core.BatchResult{}, store.ErrNotConfigured
	}
	if s.ledger != nil {
		durable, err := s.ledger.SaveUpload(ctx, filename, contents)
		if err != nil {
			return core.BatchResult{}, fmt.Errorf("store upload: %w", err)
		}
		contents = durable
	}
	refs, err := store.FetchBundle(ctx, s.refs)
	if err != nil {
		return core.BatchResult{}, err
	}
	res, err := s.processor.Process(ctx, contents, filename, refs)
	if err != nil {
		return core.BatchResult{}, err
	}
	slog.DebugContext(ctx, "CSV processed",
		"filename", filename,
		"total_rows", res.Stats.Total,
		"emitted", res.Stats.Emitted,
		"already_loaded", res.Stats.AlreadyLoaded,
		"unrecognized", res.Stats.Unrecognized)
	return res, nil
}

// Save turns a reviewed transaction into a store record. With a publisher
// the record is queued for the worker and the ref is QueuedPrefix+id.
func (s *TransactionService) Save(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	if s.publisher != nil && s.ledger != nil {
		return s.enqueue(ctx, tx)
	}
	if s.writer == nil {
		return "", store.ErrNotConfigured
	}
	ref, err := store.CreateTransaction(ctx, s.writer, tx)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tx.Type, err)
	}
	slog.InfoContext(ctx, "Record created", "kind", tx.Type, "ref", ref, "filename", tx.SourceFilename, "row_index", tx.SourceRowIndex)
	if tx.SourceFilename == "" {
		return ref, nil
	}
	if err := s.MarkLoaded(ctx, tx.SourceFilename, tx.SourceRowIndex, batch.CheckFor(tx)); err != nil {
		// The record exists; a stale mark only shows the row again next time.
		slog.WarnContext(ctx, "Failed to mark CSV row loaded", "filename", tx.SourceFilename, "row_index", tx.SourceRowIndex, "error", err)
	}
	return ref, nil
}

func (s *TransactionService) enqueue(ctx context.Context, tx core.Transaction) (string, error) {
	id, err := s.ledger.Enqueue(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("enqueue transaction: %w", err)
	}
	if err := s.publisher.PublishRecordSync(ctx, id); err != nil {
		// The sweep picks up entries whose message never went out.
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", id, "error", err)
	}
	return QueuedPrefix + id, nil
}

// MarkLoaded flags a row of a stored upload. Without a ledger it does
// nothing.
func (s *TransactionService) MarkLoaded(ctx context.Context, filename string, index int, check batch.RowCheck) error {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.MarkRowLoaded(ctx, filename, index, check)
}

// Upload returns the durable copy of filename.
func (s *TransactionService) Upload(ctx context.Context, filename string) ([]byte, error) {
	if s.ledger == nil {
		return nil, store.ErrNotConfigured
	}
	return s.ledger.GetUpload(ctx, filename)
}

func (s *TransactionService) CreateExpense(ctx context.Context, r core.ExpenseRecord) (string, error) {
	if s.writer == nil {
		return "", store.ErrNotConfigured
	}
	return s.writer.CreateExpense(ctx, r)
}

func (s *TransactionService) CreateIncome(ctx context.Context, r core.IncomeRecord) (string, error) {
	if s.writer == nil {
		return "", store.ErrNotConfigured
	}
	return s.writer.CreateIncome(ctx, r)
}

func (s *TransactionService) CreateTransfer(ctx context.Context, r core.TransferRecord) (string, error) {
	if s.writer == nil {
		return "", store.ErrNotConfigured
	}
	return s.writer.CreateTransfer(ctx, r)
}

// References lists one reference family.
func (s *TransactionService) References(ctx context.Context, f store.Family) ([]core.Category, error) {
	if s.refs == nil {
		return nil, store.ErrNotConfigured
	}
	return store.List(ctx, s.refs, f)
}

// RefreshReferences drops cached reference lists. It reports false when
// the reader keeps no cache.
func (s *TransactionService) RefreshReferences() bool {
	inv, ok := s.refs.(invalidator)
	if ok {
		inv.Invalidate()
	}
	return ok
}

// Close releases the ledger and the publisher when they hold resources.
func (s *TransactionService) Close() error {
	var errs []error
	if c, ok := s.ledger.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ledger: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %w", errors.Join(errs...))
	}
	return nil
}
