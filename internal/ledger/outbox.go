package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"moviments/internal/core"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// MaxAttempts bounds how often a failing entry is retried by the sweep.
const MaxAttempts = 5

// ClaimTimeout is how long a claim holds before another worker may take
// the entry over. It covers a worker that died between Claim and MarkSynced.
const ClaimTimeout = 10 * time.Minute

// Entry is a reviewed transaction waiting to be created in the store.
type Entry struct {
	ID          string
	Transaction core.Transaction
	Status      Status
	StoreRef    string
	LastError   string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Enqueue validates tx and adds it to the outbox as pending.
func (l *Ledger) Enqueue(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	id := uuid.NewString()
	ts := l.now().UTC().Unix()
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO outbox (id, kind, payload, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(tx.Type), string(payload), string(StatusPending), ts, ts)
	if err != nil {
		return "", fmt.Errorf("enqueue transaction: %w", err)
	}
	return id, nil
}

const entryColumns = `id, payload, status, store_ref, last_error, attempts, created_at, updated_at`

func (l *Ledger) Get(ctx context.Context, id string) (Entry, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM outbox WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("outbox entry %s: %w", id, ErrNotFound)
	}
	return e, err
}

// ListPending returns up to limit entries not yet synced, oldest first.
// Entries that failed MaxAttempts times or hold a live claim are left out.
func (l *Ledger) ListPending(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM outbox
		 WHERE status IN (?, ?) AND attempts < ? AND claimed_at <= ?
		 ORDER BY created_at, rowid LIMIT ?`,
		string(StatusPending), string(StatusError), MaxAttempts, l.claimCutoff(), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Claim takes id for one sync attempt. It reports false when another
// caller holds a live claim or the entry no longer needs syncing. Only
// the caller that got true may create the record; MarkSynced or MarkFailed
// release the claim.
func (l *Ledger) Claim(ctx context.Context, id string) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`UPDATE outbox SET claimed_at = ?
		 WHERE id = ? AND status IN (?, ?) AND attempts < ? AND claimed_at <= ?`,
		l.now().UTC().Unix(), id, string(StatusPending), string(StatusError), MaxAttempts, l.claimCutoff())
	if err != nil {
		return false, fmt.Errorf("claim outbox entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim outbox entry %s: %w", id, err)
	}
	return n == 1, nil
}

// claimCutoff is the claimed_at value at or below which a claim has expired.
// Unclaimed entries carry 0.
func (l *Ledger) claimCutoff() int64 {
	return l.now().Add(-ClaimTimeout).UTC().Unix()
}

func (l *Ledger) MarkSynced(ctx context.Context, id, ref string) error {
	return l.setStatus(ctx,
		`UPDATE outbox SET status = ?, store_ref = ?, last_error = '', claimed_at = 0, updated_at = ? WHERE id = ?`,
		id, string(StatusSynced), ref, l.now().UTC().Unix(), id)
}

// MarkFailed records a failed attempt so the sweep can retry it.
func (l *Ledger) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.setStatus(ctx,
		`UPDATE outbox SET status = ?, last_error = ?, attempts = attempts + 1, claimed_at = 0, updated_at = ? WHERE id = ?`,
		id, string(StatusError), msg, l.now().UTC().Unix(), id)
}

func (l *Ledger) setStatus(ctx context.Context, query, id string, args ...any) error {
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update outbox entry %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("outbox entry %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                Entry
		payload, status  string
		created, updated int64
	)
	if err := s.Scan(&e.ID, &payload, &status, &e.StoreRef, &e.LastError, &e.Attempts, &created, &updated); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(payload), &e.Transaction); err != nil {
		return Entry{}, fmt.Errorf("decode outbox entry %s: %w", e.ID, err)
	}
	e.Status = Status(status)
	e.CreatedAt = time.Unix(created, 0).UTC()
	e.UpdatedAt = time.Unix(updated, 0).UTC()
	return e, nil
}
