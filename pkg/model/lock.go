package model

import "time"

// LockRecord is the content of a lock marker file (<record>.json.lock).
type LockRecord struct {
	RecordName  string    `json:"record_name"`
	HolderNonce string    `json:"holder_nonce"`
	PID         int       `json:"pid"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Purpose     string    `json:"purpose,omitempty"`
}

// IsExpired returns true if the holder's lease has lapsed.
func (l *LockRecord) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LockPolicy configures lock timing parameters.
type LockPolicy struct {
	AcquireTimeout time.Duration `json:"acquire_timeout"`
	LeaseTTL       time.Duration `json:"lease_ttl"`
	PollInterval   time.Duration `json:"poll_interval"`
}

// DefaultLockPolicy matches the documented defaults: 5s acquire timeout,
// 30s lease, 25ms polling.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{
		AcquireTimeout: 5 * time.Second,
		LeaseTTL:       30 * time.Second,
		PollInterval:   25 * time.Millisecond,
	}
}

// LockState represents the current state of a lock marker.
type LockState string

const (
	LockStateHeld    LockState = "held"
	LockStateExpired LockState = "expired"
	LockStateFree    LockState = "free"
)
