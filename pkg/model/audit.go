package model

import "time"

// AuditEventType identifies a destructive or recovery event worth a trail.
type AuditEventType string

const (
	EventUserDeleted        AuditEventType = "user_deleted"
	EventSessionCleared     AuditEventType = "session_cleared"
	EventRetentionSweep     AuditEventType = "retention_sweep"
	EventCorruptRecordReset AuditEventType = "corrupt_record_reset"
)

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// AuditRecord is one line of .carestore/audit/audit.jsonl. Records form a
// hash chain: RecordHash covers the record with PrevHash included.
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	RecordKind RecordKind     `json:"record_kind,omitempty"`
	RecordID   string         `json:"record_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   HashValue      `json:"prev_hash"`
	RecordHash HashValue      `json:"record_hash,omitempty"`
}
