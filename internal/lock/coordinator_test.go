package lock_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carewise/carestore/internal/lock"
	"github.com/carewise/carestore/internal/store"
	"github.com/carewise/carestore/pkg/errclass"
	"github.com/carewise/carestore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortPolicy() model.LockPolicy {
	return model.LockPolicy{
		AcquireTimeout: 150 * time.Millisecond,
		LeaseTTL:       500 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	}
}

func setupStore(t *testing.T) string {
	dir, err := store.Init(t.TempDir())
	require.NoError(t, err)
	return dir.StoreDir
}

func TestCoordinator_AcquireRelease(t *testing.T) {
	storeDir := setupStore(t)
	coord := lock.NewCoordinator(storeDir, shortPolicy(), nil)

	h, err := coord.Acquire(context.Background(), model.KindSession, "s1", "test")
	require.NoError(t, err)

	markerPath := store.RecordPath(storeDir, model.KindSession, "s1") + ".lock"
	assert.FileExists(t, markerPath)

	require.NoError(t, coord.Release(h))
	assert.NoFileExists(t, markerPath)
}

func TestCoordinator_SecondAcquireTimesOut(t *testing.T) {
	storeDir := setupStore(t)
	coord := lock.NewCoordinator(storeDir, shortPolicy(), nil)

	h, err := coord.Acquire(context.Background(), model.KindSession, "s1", "first")
	require.NoError(t, err)
	defer coord.Release(h)

	_, err = coord.Acquire(context.Background(), model.KindSession, "s1", "second")
	require.ErrorIs(t, err, errclass.ErrLockTimeout)
}

func TestCoordinator_DifferentRecordsIndependent(t *testing.T) {
	storeDir := setupStore(t)
	coord := lock.NewCoordinator(storeDir, shortPolicy(), nil)

	h1, err := coord.Acquire(context.Background(), model.KindSession, "s1", "a")
	require.NoError(t, err)
	defer coord.Release(h1)

	h2, err := coord.Acquire(context.Background(), model.KindSession, "s2", "b")
	require.NoError(t, err)
	defer coord.Release(h2)
}

func TestCoordinator_ReleaseIdempotent(t *testing.T) {
	storeDir := setupStore(t)
	coord := lock.NewCoordinator(storeDir, shortPolicy(), nil)

	h, err := coord.Acquire(context.Background(), model.KindSession, "s1", "test")
	require.NoError(t, err)
	require.NoError(t, coord.Release(h))
	require.NoError(t, coord.Release(h))
	require.NoError(t, coord.Release(nil))
}

func TestCoordinator_ExpiredMarkerReclaimed(t *testing.T) {
	storeDir := setupStore(t)
	policy := shortPolicy()
	policy.LeaseTTL = 30 * time.Millisecond
	coord := lock.NewCoordinator(storeDir, policy, nil)

	_, err := coord.Acquire(context.Background(), model.KindSession, "s1", "doomed")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond) // let the lease lapse

	h, err := coord.Acquire(context.Background(), model.KindSession, "s1", "reclaimer")
	require.NoError(t, err)
	coord.Release(h)
}

func TestCoordinator_DeadPIDMarkerReclaimed(t *testing.T) {
	storeDir := setupStore(t)
	coord := lock.NewCoordinator(storeDir, shortPolicy(), nil)

	// Forge a marker from a process that no longer exists. PID 1 is always
	// alive, so use an implausibly high one.
	markerPath := store.RecordPath(storeDir, model.KindSession, "s1") + ".lock"
	rec := model.LockRecord{
		RecordName:  markerPath,
		HolderNonce: "gone",
		PID:         1 << 22,
		AcquiredAt:  time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	data, _ := json.Marshal(rec)
	require.NoError(t, os.WriteFile(markerPath, data, 0644))

	h, err := coord.Acquire(context.Background(), model.KindSession, "s1", "reclaimer")
	require.NoError(t, err)
	coord.Release(h)
}

func TestCoordinator_UnreadableMarkerReclaimed(t *testing.T) {
	storeDir := setupStore(t)
	coord := lock.NewCoordinator(storeDir, shortPolicy(), nil)

	markerPath := store.RecordPath(storeDir, model.KindSession, "s1") + ".lock"
	require.NoError(t, os.WriteFile(markerPath, []byte("half-writ"), 0644))

	h, err := coord.Acquire(context.Background(), model.KindSession, "s1", "reclaimer")
	require.NoError(t, err)
	coord.Release(h)
}

func TestCoordinator_WithLockReleasesOnError(t *testing.T) {
	storeDir := setupStore(t)
	coord := lock.NewCoordinator(storeDir, shortPolicy(), nil)

	boom := errors.New("boom")
	err := coord.WithLock(context.Background(), model.KindSession, "s1", "test", func() error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Lock must be free again
	h, err := coord.Acquire(context.Background(), model.KindSession, "s1", "after")
	require.NoError(t, err)
	coord.Release(h)
}

func TestCoordinator_AcquireHonorsContext(t *testing.T) {
	storeDir := setupStore(t)
	policy := shortPolicy()
	policy.AcquireTimeout = 10 * time.Second
	coord := lock.NewCoordinator(storeDir, policy, nil)

	h, err := coord.Acquire(context.Background(), model.KindSession, "s1", "holder")
	require.NoError(t, err)
	defer coord.Release(h)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = coord.Acquire(ctx, model.KindSession, "s1", "waiter")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoordinator_Status(t *testing.T) {
	storeDir := setupStore(t)
	coord := lock.NewCoordinator(storeDir, shortPolicy(), nil)

	state, rec, err := coord.Status(model.KindSession, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateFree, state)
	assert.Nil(t, rec)

	h, err := coord.Acquire(context.Background(), model.KindSession, "s1", "probe")
	require.NoError(t, err)
	defer coord.Release(h)

	state, rec, err = coord.Status(model.KindSession, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateHeld, state)
	require.NotNil(t, rec)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "probe", rec.Purpose)
}

func TestCoordinator_ConcurrentReclaimSingleHolder(t *testing.T) {
	storeDir := setupStore(t)
	policy := shortPolicy()
	policy.AcquireTimeout = 10 * time.Second
	policy.LeaseTTL = 10 * time.Second

	// A crashed holder left an expired marker behind; two coordinators (as in
	// two processes) race to reclaim it. A reclaimer must never delete the
	// fresh marker another reclaimer already created in the same spot, so at
	// no point may two contenders be inside the critical section together.
	markerPath := store.RecordPath(storeDir, model.KindSession, "s1") + ".lock"
	rec := model.LockRecord{
		RecordName:  markerPath,
		HolderNonce: "crashed",
		PID:         1 << 22,
		AcquiredAt:  time.Now().UTC().Add(-time.Hour),
		ExpiresAt:   time.Now().UTC().Add(-time.Minute),
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(markerPath, data, 0644))

	coords := []*lock.Coordinator{
		lock.NewCoordinator(storeDir, policy, nil),
		lock.NewCoordinator(storeDir, policy, nil),
	}

	var inside atomic.Int32
	var overlaps atomic.Int32
	var wg sync.WaitGroup
	for _, coord := range coords {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(coord *lock.Coordinator) {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					err := coord.WithLock(context.Background(), model.KindSession, "s1", "contend", func() error {
						if inside.Add(1) != 1 {
							overlaps.Add(1)
						}
						time.Sleep(200 * time.Microsecond)
						inside.Add(-1)
						return nil
					})
					assert.NoError(t, err)
				}
			}(coord)
		}
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load(), "two holders entered the critical section at once")
}

func TestCoordinator_ReleaseAfterTakeoverKeepsNewMarker(t *testing.T) {
	storeDir := setupStore(t)
	slowPolicy := shortPolicy()
	slowPolicy.LeaseTTL = 20 * time.Millisecond
	coordA := lock.NewCoordinator(storeDir, slowPolicy, nil)
	coordB := lock.NewCoordinator(storeDir, shortPolicy(), nil)

	h, err := coordA.Acquire(context.Background(), model.KindSession, "s1", "slow")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond) // A's lease lapses mid-operation

	h2, err := coordB.Acquire(context.Background(), model.KindSession, "s1", "takeover")
	require.NoError(t, err)

	require.ErrorIs(t, coordA.Release(h), errclass.ErrLockNotHeld)

	// B's marker survived A's stale release.
	state, rec, err := coordB.Status(model.KindSession, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateHeld, state)
	require.NotNil(t, rec)
	assert.Equal(t, "takeover", rec.Purpose)

	require.NoError(t, coordB.Release(h2))
}

func TestCoordinator_MutualExclusion(t *testing.T) {
	storeDir := setupStore(t)
	policy := shortPolicy()
	policy.AcquireTimeout = 5 * time.Second
	coord := lock.NewCoordinator(storeDir, policy, nil)

	// Writers append to a shared file only while holding the lock; bytes
	// from different writers must never interleave within a line.
	target := filepath.Join(storeDir, "counter")
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				err := coord.WithLock(context.Background(), model.KindSession, "shared", "incr", func() error {
					counter++
					return os.WriteFile(target, []byte{byte(counter)}, 0644)
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 80, counter)
}
