package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carewise/carestore/pkg/logging"
	"github.com/carewise/carestore/pkg/metrics"
	"github.com/carewise/carestore/pkg/model"

	_ "modernc.org/sqlite"
)

const recordSchema = `
CREATE TABLE IF NOT EXISTS records (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	doc BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (kind, id)
);`

// SQLiteBackend stores records in a single database file. It satisfies the
// same contract as FileBackend; SQLite's journal provides the atomic-replace
// guarantee the file backend gets from rename.
type SQLiteBackend struct {
	db    *sql.DB
	log   *logging.Logger
	trail AuditAppender
}

// NewSQLiteBackend opens (or creates) a SQLite-backed record store.
func NewSQLiteBackend(dsn string, log *logging.Logger) (*SQLiteBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite backend dsn is required")
	}
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite backend open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite backend set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite backend set busy timeout: %w", err)
	}
	if _, err := db.Exec(recordSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite backend create schema: %w", err)
	}

	return &SQLiteBackend{db: db, log: log}, nil
}

// SetAuditTrail routes corrupt-record resets to the audit log.
func (b *SQLiteBackend) SetAuditTrail(trail AuditAppender) { b.trail = trail }

// Read returns the stored document, or nil if no row exists. A row holding
// invalid JSON is deleted and reported as missing, same as the file backend.
func (b *SQLiteBackend) Read(ctx context.Context, kind model.RecordKind, id string) ([]byte, error) {
	var doc []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT doc FROM records WHERE kind = ? AND id = ?", string(kind), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read record: %w", err)
	}

	if !json.Valid(doc) {
		metrics.Default.RecordCorruptionReset()
		b.log.Warn("corrupt record reset", map[string]any{
			"kind": string(kind),
			"id":   id,
		})
		if err := b.Delete(ctx, kind, id); err != nil {
			return nil, fmt.Errorf("remove corrupt record: %w", err)
		}
		if b.trail != nil {
			if err := b.trail.Append(model.EventCorruptRecordReset, kind, id, nil); err != nil {
				b.log.Warn("audit append failed", map[string]any{
					"event": string(model.EventCorruptRecordReset),
					"error": err.Error(),
				})
			}
		}
		return nil, nil
	}
	return doc, nil
}

// Write upserts the record row.
func (b *SQLiteBackend) Write(ctx context.Context, kind model.RecordKind, id string, doc []byte) error {
	_, err := b.db.ExecContext(ctx, `
INSERT INTO records (kind, id, doc, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (kind, id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		string(kind), id, doc, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite write record: %w", err)
	}
	return nil
}

// Delete removes the record row. Deleting a missing row is not an error.
func (b *SQLiteBackend) Delete(ctx context.Context, kind model.RecordKind, id string) error {
	_, err := b.db.ExecContext(ctx,
		"DELETE FROM records WHERE kind = ? AND id = ?", string(kind), id)
	if err != nil {
		return fmt.Errorf("sqlite delete record: %w", err)
	}
	return nil
}

// Exists reports whether a record row is present.
func (b *SQLiteBackend) Exists(ctx context.Context, kind model.RecordKind, id string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		"SELECT 1 FROM records WHERE kind = ? AND id = ?", string(kind), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite record exists: %w", err)
	}
	return true, nil
}

// List returns the ids of all records of kind.
func (b *SQLiteBackend) List(ctx context.Context, kind model.RecordKind) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT id FROM records WHERE kind = ? ORDER BY id", string(kind))
	if err != nil {
		return nil, fmt.Errorf("sqlite list records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list records: %w", err)
	}
	return ids, nil
}

// Close closes the database handle.
func (b *SQLiteBackend) Close() error { return b.db.Close() }
