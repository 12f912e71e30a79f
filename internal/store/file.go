package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carewise/carestore/pkg/errclass"
	"github.com/carewise/carestore/pkg/fsutil"
	"github.com/carewise/carestore/pkg/logging"
	"github.com/carewise/carestore/pkg/metrics"
	"github.com/carewise/carestore/pkg/model"
)

const (
	writeAttempts   = 3
	writeRetryDelay = 50 * time.Millisecond
)

// FileBackend stores one JSON file per record under the store directory.
type FileBackend struct {
	storeDir string
	log      *logging.Logger
	trail    AuditAppender
}

// NewFileBackend creates a file backend rooted at storeDir (the .carestore/
// directory). The sessions/ and users/ subdirectories must already exist;
// Init creates them.
func NewFileBackend(storeDir string, log *logging.Logger) *FileBackend {
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo)
	}
	return &FileBackend{storeDir: storeDir, log: log}
}

// SetAuditTrail routes corrupt-record resets to the audit log.
func (b *FileBackend) SetAuditTrail(trail AuditAppender) { b.trail = trail }

// Read loads a record file. A missing file returns nil. An unparseable file
// is deleted and returns nil: corruption is converted into a clean reset
// rather than a crash loop.
func (b *FileBackend) Read(ctx context.Context, kind model.RecordKind, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := RecordPath(b.storeDir, kind, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record: %w", err)
	}

	if !json.Valid(data) {
		metrics.Default.RecordCorruptionReset()
		b.log.Warn("corrupt record reset", map[string]any{
			"kind": string(kind),
			"id":   id,
			"path": path,
		})
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove corrupt record: %w", err)
		}
		if b.trail != nil {
			if err := b.trail.Append(model.EventCorruptRecordReset, kind, id, map[string]any{"path": path}); err != nil {
				b.log.Warn("audit append failed", map[string]any{
					"event": string(model.EventCorruptRecordReset),
					"error": err.Error(),
				})
			}
		}
		return nil, nil
	}
	return data, nil
}

// Write atomically replaces the record file, retrying transient failures.
func (b *FileBackend) Write(ctx context.Context, kind model.RecordKind, id string, doc []byte) error {
	path := RecordPath(b.storeDir, kind, id)

	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fsutil.AtomicWrite(path, doc, 0644)
		if lastErr == nil {
			return nil
		}
		if attempt < writeAttempts {
			b.log.Warn("record write retry", map[string]any{
				"kind":    string(kind),
				"id":      id,
				"attempt": attempt,
				"error":   lastErr.Error(),
			})
			time.Sleep(writeRetryDelay)
		}
	}
	return errclass.ErrWriteFailed.WithMessagef("write %s record %s: %v", kind, id, lastErr)
}

// Delete removes the record file. Missing files are ignored.
func (b *FileBackend) Delete(ctx context.Context, kind model.RecordKind, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := RecordPath(b.storeDir, kind, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Exists reports whether the record file is present.
func (b *FileBackend) Exists(ctx context.Context, kind model.RecordKind, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(RecordPath(b.storeDir, kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat record: %w", err)
	}
	return true, nil
}

// List returns the ids of all records of kind, skipping lock markers and
// leftover temporaries.
func (b *FileBackend) List(ctx context.Context, kind model.RecordKind) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(b.storeDir, KindDir(kind)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list records: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if strings.HasPrefix(name, fsutil.TempPrefix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error { return nil }
