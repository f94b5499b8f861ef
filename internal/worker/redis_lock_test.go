package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRecordingLockExcludesSecondHolder(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	first := NewRecordingLock(client, "AA:BB:CC", time.Minute)
	require.NoError(t, first.Acquire(ctx))

	second := NewRecordingLock(client, "AA:BB:CC", time.Minute)
	err := second.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestRecordingLockDifferentDevicesDoNotConflict(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	first := NewRecordingLock(client, "AA:BB:CC", time.Minute)
	require.NoError(t, first.Acquire(ctx))

	second := NewRecordingLock(client, "DD:EE:FF", time.Minute)
	require.NoError(t, second.Acquire(ctx))
}

func TestRecordingLockReleaseAllowsReacquire(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	lock := NewRecordingLock(client, "AA:BB:CC", time.Minute)
	require.NoError(t, lock.Acquire(ctx))
	require.NoError(t, lock.Release(ctx))

	again := NewRecordingLock(client, "AA:BB:CC", time.Minute)
	require.NoError(t, again.Acquire(ctx))
}

func TestRecordingLockReleaseByNonHolderFails(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	lock := NewRecordingLock(client, "AA:BB:CC", time.Minute)
	require.NoError(t, lock.Acquire(ctx))

	imposter := NewRecordingLock(client, "AA:BB:CC", time.Minute)
	err := imposter.Release(ctx)
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestRecordingLockExtend(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	lock := NewRecordingLock(client, "AA:BB:CC", time.Minute)
	require.NoError(t, lock.Acquire(ctx))
	require.NoError(t, lock.Extend(ctx, 2*time.Minute))
}
