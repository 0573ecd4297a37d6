// Package ledger is the local SQLite database holding durable copies of
// uploaded statements, the rows already loaded from them, and the outbox of
// reviewed transactions waiting for the worker.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"moviments/internal/batch"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrRowMismatch = batch.ErrRowMismatch
)

type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database directory when needed, opens dbPath and runs
// the migrations.
func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db, now: time.Now}, nil
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// SaveUpload stores contents as the durable copy of filename and returns
// it. When a copy already exists it is replaced, and rows that were loaded
// in it stay loaded in the new copy when DATE, CONCEPT and IMPORT match.
func (l *Ledger) SaveUpload(ctx context.Context, filename string, contents []byte) ([]byte, error) {
	if filename == "" {
		return nil, errors.New("empty upload filename")
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ts := l.now().UTC().Unix()
	var prev []byte
	err = tx.QueryRowContext(ctx, `SELECT contents FROM uploads WHERE filename = ?`, filename).Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO uploads (filename, contents, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			filename, contents, ts, ts); err != nil {
			return nil, fmt.Errorf("save upload %s: %w", filename, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return contents, nil
	case err != nil:
		return nil, fmt.Errorf("get upload %s: %w", filename, err)
	}

	merged, loaded, err := batch.CarryLoaded(prev, contents)
	if err != nil {
		return nil, fmt.Errorf("replace upload %s: %w", filename, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE uploads SET contents = ?, updated_at = ? WHERE filename = ?`,
		merged, ts, filename); err != nil {
		return nil, fmt.Errorf("replace upload %s: %w", filename, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM loaded_rows WHERE filename = ?`, filename); err != nil {
		return nil, fmt.Errorf("reset loaded rows: %w", err)
	}
	for _, i := range loaded {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO loaded_rows (filename, row_index, loaded_at) VALUES (?, ?, ?)`,
			filename, i, ts); err != nil {
			return nil, fmt.Errorf("record loaded row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	slog.DebugContext(ctx, "Upload replaced", "filename", filename, "loaded_rows", len(loaded))
	return merged, nil
}

func (l *Ledger) GetUpload(ctx context.Context, filename string) ([]byte, error) {
	var contents []byte
	err := l.db.QueryRowContext(ctx, `SELECT contents FROM uploads WHERE filename = ?`, filename).Scan(&contents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("upload %s: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get upload %s: %w", filename, err)
	}
	return contents, nil
}

// MarkRowLoaded flags data row index of the stored upload as loaded. It is a
// no-op when no upload of that name exists.
func (l *Ledger) MarkRowLoaded(ctx context.Context, filename string, index int, check batch.RowCheck) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var contents []byte
	err = tx.QueryRowContext(ctx, `SELECT contents FROM uploads WHERE filename = ?`, filename).Scan(&contents)
	if errors.Is(err, sql.ErrNoRows) {
		slog.DebugContext(ctx, "No stored upload to mark", "filename", filename, "row_index", index)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get upload %s: %w", filename, err)
	}

	updated, err := batch.MarkLoaded(contents, index, check)
	if err != nil {
		return fmt.Errorf("mark %s row %d: %w", filename, index, err)
	}

	ts := l.now().UTC().Unix()
	if _, err := tx.ExecContext(ctx,
		`UPDATE uploads SET contents = ?, updated_at = ? WHERE filename = ?`,
		updated, ts, filename); err != nil {
		return fmt.Errorf("update upload %s: %w", filename, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO loaded_rows (filename, row_index, loaded_at) VALUES (?, ?, ?)
		 ON CONFLICT(filename, row_index) DO NOTHING`,
		filename, index, ts); err != nil {
		return fmt.Errorf("record loaded row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "CSV row marked loaded", "filename", filename, "row_index", index)
	return nil
}

// LoadedRows returns the row indexes recorded as loaded for filename.
func (l *Ledger) LoadedRows(ctx context.Context, filename string) ([]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT row_index FROM loaded_rows WHERE filename = ? ORDER BY row_index`, filename)
	if err != nil {
		return nil, fmt.Errorf("list loaded rows: %w", err)
	}
	defer rows.Close()
	out := []int{}
	for rows.Next() {
		var i int
		if err := rows.Scan(&i); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
