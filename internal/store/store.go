// Package store implements the durable record backends.
//
// A Backend reads and writes one named document per (kind, id) pair. The
// file backend is the default; the sqlite backend serves deployments that
// prefer a single database file over a directory of records. Both share the
// same recovery contract: a missing record is not an error, and an
// unparseable record is deleted and reported as missing.
package store

import (
	"context"

	"github.com/carewise/carestore/pkg/model"
)

// AuditAppender receives destructive events the backends trigger on their
// own, currently only corrupt-record resets. Satisfied by audit.FileAppender.
type AuditAppender interface {
	Append(eventType model.AuditEventType, kind model.RecordKind, recordID string, details map[string]any) error
}

// Backend is the storage seam. Implementations must guarantee that a write
// interrupted by a crash is never observable as partial content.
type Backend interface {
	// Read returns the stored document for (kind, id), or nil if no record
	// exists. Corrupt content is removed and treated as missing.
	Read(ctx context.Context, kind model.RecordKind, id string) ([]byte, error)

	// Write durably replaces the document for (kind, id).
	Write(ctx context.Context, kind model.RecordKind, id string, doc []byte) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, kind model.RecordKind, id string) error

	// Exists reports whether a record is present.
	Exists(ctx context.Context, kind model.RecordKind, id string) (bool, error)

	// List returns the ids of all records of the given kind.
	List(ctx context.Context, kind model.RecordKind) ([]string, error)

	// Close releases backend resources.
	Close() error
}
