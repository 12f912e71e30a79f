// Package audit appends tamper-evident records of destructive store events.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/carewise/carestore/pkg/jsonutil"
	"github.com/carewise/carestore/pkg/model"
)

// FileAppender appends audit records to a JSONL file with a hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates a FileAppender for the given log path.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Append adds a new audit record to the log.
func (a *FileAppender) Append(eventType model.AuditEventType, kind model.RecordKind, recordID string, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	// Exclusive flock keeps concurrent processes from interleaving lines.
	if err := lockFile(file); err != nil {
		return fmt.Errorf("flock audit log: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := a.lastRecordHashLocked(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	record := &model.AuditRecord{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		RecordKind: kind,
		RecordID:   recordID,
		Details:    details,
		PrevHash:   prevHash,
	}
	recordHash, err := computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	record.RecordHash = recordHash

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	if _, err := file.Seek(0, 2); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// Verify walks the log and checks the hash chain. Returns the number of
// records verified.
func (a *FileAppender) Verify() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var (
		prev  model.HashValue
		count int
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return count, fmt.Errorf("audit record %d unparseable: %w", count+1, err)
		}
		if record.PrevHash != prev {
			return count, fmt.Errorf("audit chain broken at record %d", count+1)
		}
		got, err := computeRecordHash(&record)
		if err != nil {
			return count, err
		}
		if got != record.RecordHash {
			return count, fmt.Errorf("audit record %d hash mismatch", count+1)
		}
		prev = record.RecordHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan audit log: %w", err)
	}
	return count, nil
}

func (a *FileAppender) lastRecordHashLocked(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // skip malformed lines
		}
		lastHash = record.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return lastHash, nil
}

func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	// RecordHash is excluded from its own hash.
	hashRecord := &model.AuditRecord{
		Timestamp:  record.Timestamp,
		EventType:  record.EventType,
		RecordKind: record.RecordKind,
		RecordID:   record.RecordID,
		Details:    record.Details,
		PrevHash:   record.PrevHash,
	}
	data, err := jsonutil.CanonicalMarshal(hashRecord)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
