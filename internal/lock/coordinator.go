// Package lock provides advisory, cross-process mutual exclusion per record.
//
// Each record has a companion marker file (<record>.json.lock) holding a JSON
// lease. Acquisition uses O_CREATE|O_EXCL so exactly one context wins; the
// losers poll until the marker disappears or the timeout fires. A crashed
// holder leaves a stale marker, which is reclaimed when its lease expires or
// its recorded PID is no longer alive.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carewise/carestore/internal/store"
	"github.com/carewise/carestore/pkg/errclass"
	"github.com/carewise/carestore/pkg/logging"
	"github.com/carewise/carestore/pkg/metrics"
	"github.com/carewise/carestore/pkg/model"
)

// Coordinator hands out exclusive per-record locks.
type Coordinator struct {
	storeDir string
	policy   model.LockPolicy
	log      *logging.Logger
	mu       sync.Mutex
}

// Handle represents a held lock. Release is idempotent.
type Handle struct {
	coord    *Coordinator
	path     string
	nonce    string
	released bool
	mu       sync.Mutex
}

// NewCoordinator creates a lock coordinator for the given store directory.
func NewCoordinator(storeDir string, policy model.LockPolicy, log *logging.Logger) *Coordinator {
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo)
	}
	return &Coordinator{storeDir: storeDir, policy: policy, log: log}
}

func (c *Coordinator) markerPath(kind model.RecordKind, id string) string {
	return store.RecordPath(c.storeDir, kind, id) + ".lock"
}

// Acquire blocks until the lock for (kind, id) is held, the context is
// cancelled, or the policy's acquire timeout fires. On timeout the caller
// must assume the record was neither read nor written.
func (c *Coordinator) Acquire(ctx context.Context, kind model.RecordKind, id, purpose string) (*Handle, error) {
	deadline := time.Now().Add(c.policy.AcquireTimeout)
	path := c.markerPath(kind, id)

	for {
		handle, err := c.tryAcquire(path, purpose)
		if err != nil {
			return nil, err
		}
		if handle != nil {
			return handle, nil
		}

		if time.Now().After(deadline) {
			metrics.Default.RecordLockTimeout()
			return nil, errclass.ErrLockTimeout.WithMessagef(
				"record %s/%s still locked after %s", kind, id, c.policy.AcquireTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.policy.PollInterval):
		}
	}
}

// tryAcquire makes one attempt. Returns (nil, nil) when the lock is held by
// a live holder and the caller should keep polling.
func (c *Coordinator) tryAcquire(path, purpose string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock marker: %w", err)
		}
		if c.reclaimIfStale(path) {
			// Marker removed; the outer loop retries immediately.
			return nil, nil
		}
		return nil, nil
	}
	defer file.Close()

	// Hold the flock while writing so a reclaimer can never observe, and
	// judge stale, a half-written marker from a live holder.
	if err := lockFile(file); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("flock lock marker: %w", err)
	}
	defer unlockFile(file)

	now := time.Now().UTC()
	rec := &model.LockRecord{
		RecordName:  path,
		HolderNonce: uuid.NewString(),
		PID:         os.Getpid(),
		AcquiredAt:  now,
		ExpiresAt:   now.Add(c.policy.LeaseTTL),
		Purpose:     purpose,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("marshal lock marker: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write lock marker: %w", err)
	}
	if err := file.Sync(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("sync lock marker: %w", err)
	}

	return &Handle{coord: c, path: path, nonce: rec.HolderNonce}, nil
}

// reclaimIfStale removes a marker whose holder crashed: either its lease
// expired or its PID is gone. The judge-then-remove sequence runs under an
// exclusive flock on the marker inode, re-verified against the path, so a
// slow contender can never delete the fresh marker a faster contender has
// already created in the same spot. Returns true if the caller should retry
// acquisition immediately.
func (c *Coordinator) reclaimIfStale(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return os.IsNotExist(err) // released between attempts
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return false
	}
	defer unlockFile(file)

	// While we waited for the flock another contender may have finished its
	// own reclaim; only the inode we locked may be judged and removed.
	held, err := file.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if os.IsNotExist(err) {
		return true // reclaimed by another contender
	}
	if err != nil || !os.SameFile(held, current) {
		return false // a new holder's marker, not the one we locked
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return false
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// A half-written marker means the writer died between create and sync.
		c.log.Warn("removing unreadable lock marker", map[string]any{"path": path})
		os.Remove(path)
		return true
	}

	if rec.IsExpired(time.Now()) {
		c.log.Warn("reclaiming expired lock marker", map[string]any{
			"path": path,
			"pid":  rec.PID,
		})
		os.Remove(path)
		return true
	}
	if rec.PID > 0 && !pidAlive(rec.PID) {
		c.log.Warn("reclaiming lock marker from dead process", map[string]any{
			"path": path,
			"pid":  rec.PID,
		})
		os.Remove(path)
		return true
	}
	return false
}

// Release frees the lock. Releasing twice, or releasing a marker already
// reclaimed by another process, is a no-op.
func (c *Coordinator) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open lock marker: %w", err)
	}
	defer file.Close()

	// Same flock-and-reverify discipline as reclaimIfStale: the check and the
	// remove must land on the same inode.
	if err := lockFile(file); err != nil {
		return fmt.Errorf("flock lock marker: %w", err)
	}
	defer unlockFile(file)

	held, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat lock marker: %w", err)
	}
	current, err := os.Stat(h.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat lock marker: %w", err)
	}
	if !os.SameFile(held, current) {
		return errclass.ErrLockNotHeld.WithMessage("cannot release: marker replaced")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read lock marker: %w", err)
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("parse lock marker: %w", err)
	}
	if rec.HolderNonce != h.nonce {
		// Lease expired and someone else took over; their marker stays.
		return errclass.ErrLockNotHeld.WithMessage("cannot release: nonce mismatch")
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock marker: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the lock for (kind, id), releasing on every
// control-flow path.
func (c *Coordinator) WithLock(ctx context.Context, kind model.RecordKind, id, purpose string, fn func() error) error {
	handle, err := c.Acquire(ctx, kind, id, purpose)
	if err != nil {
		return err
	}
	defer c.Release(handle)
	return fn()
}

// Status returns the current lock state for a record.
func (c *Coordinator) Status(kind model.RecordKind, id string) (model.LockState, *model.LockRecord, error) {
	rec, err := readMarker(c.markerPath(kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return model.LockStateFree, nil, nil
		}
		return model.LockStateFree, nil, fmt.Errorf("read lock marker: %w", err)
	}
	if rec.IsExpired(time.Now()) {
		return model.LockStateExpired, rec, nil
	}
	return model.LockStateHeld, rec, nil
}

func readMarker(path string) (*model.LockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock marker: %w", err)
	}
	return &rec, nil
}
