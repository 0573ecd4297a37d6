// Package worker creates queued records in the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"moviments/internal/amqp"
	"moviments/internal/batch"
	"moviments/internal/ledger"
	"moviments/internal/store"
)

// Outbox is the part of the ledger the worker drives.
type Outbox interface {
	Get(ctx context.Context, id string) (ledger.Entry, error)
	ListPending(ctx context.Context, limit int) ([]ledger.Entry, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkSynced(ctx context.Context, id, ref string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	MarkRowLoaded(ctx context.Context, filename string, index int, check batch.RowCheck) error
}

// SyncWorker moves outbox entries into the record store.
type SyncWorker struct {
	outbox    Outbox
	writer    store.RecordWriter
	batchSize int
	cron      *cron.Cron
}

func NewSyncWorker(outbox Outbox, writer store.RecordWriter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{outbox: outbox, writer: writer, batchSize: batchSize}
}

// HandleSyncMessage creates the record announced by msg. Store failures are
// recorded on the entry and left to the sweep; only ledger failures are
// returned so the message is requeued.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "id", msg.ID, "published_at", msg.Timestamp)

	entry, err := w.outbox.Get(ctx, msg.ID)
	if errors.Is(err, ledger.ErrNotFound) {
		slog.WarnContext(ctx, "Sync message for unknown outbox entry", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	if entry.Status == ledger.StatusSynced {
		slog.DebugContext(ctx, "Outbox entry already synced", "id", entry.ID, "ref", entry.StoreRef)
		return nil
	}
	if _, err := w.sync(ctx, entry); err != nil {
		if errors.Is(err, errClaim) {
			return err
		}
		slog.ErrorContext(ctx, "Failed to sync outbox entry", "id", entry.ID, "error", err)
	}
	return nil
}

var errClaim = errors.New("claim outbox entry")

// sync creates the record of e once it holds the entry's claim. It reports
// false without error when another sync owns the entry.
func (w *SyncWorker) sync(ctx context.Context, e ledger.Entry) (bool, error) {
	claimed, err := w.outbox.Claim(ctx, e.ID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", errClaim, err)
	}
	if !claimed {
		slog.DebugContext(ctx, "Outbox entry owned by another sync", "id", e.ID)
		return false, nil
	}

	tx := e.Transaction
	ref, err := store.CreateTransaction(ctx, w.writer, tx)
	if err != nil {
		if markErr := w.outbox.MarkFailed(ctx, e.ID, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", e.ID, "error", markErr)
		}
		return true, fmt.Errorf("create %s: %w", tx.Type, err)
	}
	// A transaction entered by hand has no statement row to flag.
	if tx.SourceFilename != "" {
		if err := w.outbox.MarkRowLoaded(ctx, tx.SourceFilename, tx.SourceRowIndex, batch.CheckFor(tx)); err != nil {
			slog.WarnContext(ctx, "Failed to mark CSV row loaded",
				"id", e.ID, "filename", tx.SourceFilename, "row_index", tx.SourceRowIndex, "error", err)
		}
	}
	if err := w.outbox.MarkSynced(ctx, e.ID, ref); err != nil {
		return true, fmt.Errorf("mark synced: %w", err)
	}
	slog.InfoContext(ctx, "Record created from outbox", "id", e.ID, "kind", tx.Type, "ref", ref)
	return true, nil
}

// ProcessPending syncs up to limit pending entries. It is the fallback for
// lost messages.
func (w *SyncWorker) ProcessPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.outbox.ListPending(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending: %w", err)
	}
	for _, e := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		done, err := w.sync(ctx, e)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to sync pending entry", "id", e.ID, "attempts", e.Attempts+1, "error", err)
			failed++
			continue
		}
		if done {
			synced++
		}
	}
	if len(pending) > 0 {
		slog.InfoContext(ctx, "Pending outbox processed", "synced", synced, "failed", failed)
	}
	return synced, failed, nil
}

// StartupSyncCheck runs one larger sweep for entries left behind while the
// worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.ProcessPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync check completed", "synced", synced, "failed", failed)
	return nil
}

// StartSchedule runs the pending sweep on the cron spec and any extra jobs
// on theirs. Stop ends it.
func (w *SyncWorker) StartSchedule(ctx context.Context, spec string, extra map[string]func()) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, _, err := w.ProcessPending(ctx, w.batchSize); err != nil {
			slog.ErrorContext(ctx, "Scheduled sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	for s, job := range extra {
		if _, err := c.AddFunc(s, job); err != nil {
			return fmt.Errorf("schedule job %q: %w", s, err)
		}
	}
	c.Start()
	w.cron = c
	slog.InfoContext(ctx, "Sync schedule started", "spec", spec)
	return nil
}

// Stop waits up to timeout for running scheduled jobs.
func (w *SyncWorker) Stop(timeout time.Duration) {
	if w.cron == nil {
		return
	}
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(timeout):
		slog.Warn("Scheduled jobs still running at shutdown")
	}
}
