// Package metrics provides in-process counters for store operations.
package metrics

import "sync/atomic"

// Registry holds carestore counters. All methods are safe for concurrent use.
type Registry struct {
	loads            atomic.Int64
	saves            atomic.Int64
	saveFailures     atomic.Int64
	corruptionResets atomic.Int64
	sweepDeletions   atomic.Int64
	lockTimeouts     atomic.Int64
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RecordLoad counts a record load.
func (r *Registry) RecordLoad() { r.loads.Add(1) }

// RecordSave counts a save attempt; failed marks the degraded path where the
// caller continues on in-memory state only.
func (r *Registry) RecordSave(failed bool) {
	r.saves.Add(1)
	if failed {
		r.saveFailures.Add(1)
	}
}

// RecordCorruptionReset counts a corrupt record that was deleted and reset.
func (r *Registry) RecordCorruptionReset() { r.corruptionResets.Add(1) }

// RecordSweep counts records deleted by a retention sweep.
func (r *Registry) RecordSweep(deleted int) { r.sweepDeletions.Add(int64(deleted)) }

// RecordLockTimeout counts an acquire that gave up.
func (r *Registry) RecordLockTimeout() { r.lockTimeouts.Add(1) }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Loads            int64 `json:"loads"`
	Saves            int64 `json:"saves"`
	SaveFailures     int64 `json:"save_failures"`
	CorruptionResets int64 `json:"corruption_resets"`
	SweepDeletions   int64 `json:"sweep_deletions"`
	LockTimeouts     int64 `json:"lock_timeouts"`
}

// Read returns the current counter values.
func (r *Registry) Read() Snapshot {
	return Snapshot{
		Loads:            r.loads.Load(),
		Saves:            r.saves.Load(),
		SaveFailures:     r.saveFailures.Load(),
		CorruptionResets: r.corruptionResets.Load(),
		SweepDeletions:   r.sweepDeletions.Load(),
		LockTimeouts:     r.lockTimeouts.Load(),
	}
}

// Default is the process-wide registry.
var Default = NewRegistry()
