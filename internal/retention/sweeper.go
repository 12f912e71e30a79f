// Package retention deletes session records that have gone stale.
package retention

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carewise/carestore/internal/audit"
	"github.com/carewise/carestore/internal/lock"
	"github.com/carewise/carestore/internal/store"
	"github.com/carewise/carestore/pkg/logging"
	"github.com/carewise/carestore/pkg/metrics"
	"github.com/carewise/carestore/pkg/model"
)

// Sweeper scans session records and deletes those older than a configured
// age. It never touches user records, and it takes the per-record lock
// before deleting so a sweep cannot remove a record mid-write.
type Sweeper struct {
	backend store.Backend
	locks   *lock.Coordinator
	trail   *audit.FileAppender
	log     *logging.Logger
}

// NewSweeper creates a retention sweeper. trail may be nil to skip auditing.
func NewSweeper(backend store.Backend, locks *lock.Coordinator, trail *audit.FileAppender, log *logging.Logger) *Sweeper {
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo)
	}
	return &Sweeper{backend: backend, locks: locks, trail: trail, log: log}
}

// Sweep deletes session records whose last access is older than maxAge.
// Returns the number of records deleted. Per-record failures are logged and
// skipped; the sweep keeps going.
func (s *Sweeper) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := s.backend.List(ctx, model.KindSession)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	deleted := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		removed, err := s.sweepOne(ctx, id, now, maxAge)
		if err != nil {
			s.log.ErrorErr("sweep record failed", err, map[string]any{"session_id": id})
			continue
		}
		if removed {
			deleted++
		}
	}

	metrics.Default.RecordSweep(deleted)
	if s.trail != nil && deleted > 0 {
		err := s.trail.Append(model.EventRetentionSweep, model.KindSession, "", map[string]any{
			"deleted_count": deleted,
			"max_age":       maxAge.String(),
		})
		if err != nil {
			s.log.Warn("audit append failed", map[string]any{
				"event": string(model.EventRetentionSweep),
				"error": err.Error(),
			})
		}
	}
	s.log.Info("retention sweep complete", map[string]any{
		"scanned": len(ids),
		"deleted": deleted,
	})
	return deleted, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, id string, now time.Time, maxAge time.Duration) (bool, error) {
	removed := false
	err := s.locks.WithLock(ctx, model.KindSession, id, "retention-sweep", func() error {
		doc, err := s.backend.Read(ctx, model.KindSession, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return nil // deleted or reset since listing
		}

		var rec model.SessionRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			// Valid JSON with the wrong shape; reset it like corruption.
			if err := s.backend.Delete(ctx, model.KindSession, id); err != nil {
				return err
			}
			removed = true
			return nil
		}
		if rec.Age(now) <= maxAge {
			return nil
		}
		if err := s.backend.Delete(ctx, model.KindSession, id); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}
