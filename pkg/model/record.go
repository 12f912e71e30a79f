package model

import "time"

// RecordKind distinguishes the two storage tiers.
type RecordKind string

const (
	// KindSession is the ephemeral tier: one record per browser/client
	// instance, eligible for retention sweeps.
	KindSession RecordKind = "session"
	// KindUser is the durable tier: one record per identity, never swept.
	KindUser RecordKind = "user"
)

// SessionRecord is stored at .carestore/sessions/<session_id>.json.
type SessionRecord struct {
	SessionID    string         `json:"session_id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
	Payload      map[string]any `json:"payload"`
}

// NewSessionRecord returns an empty session record for id.
func NewSessionRecord(id string, now time.Time) *SessionRecord {
	return &SessionRecord{
		SessionID:    id,
		CreatedAt:    now,
		LastAccessed: now,
		Payload:      make(map[string]any),
	}
}

// Age returns how long ago the record was last accessed.
func (r *SessionRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.LastAccessed)
}

// UserRecord is stored at .carestore/users/<user_id>.json.
type UserRecord struct {
	UserID      string         `json:"user_id"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
	Payload     map[string]any `json:"payload"`
}

// NewUserRecord returns an empty user record for id.
func NewUserRecord(id string, now time.Time) *UserRecord {
	return &UserRecord{
		UserID:      id,
		CreatedAt:   now,
		LastUpdated: now,
		Payload:     make(map[string]any),
	}
}
