package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
)

func TestLocalLocker(t *testing.T) {
	t.Parallel()

	locker := service.NewLocalLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "ingest", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "ingest", time.Minute)
	require.ErrorIs(t, err, service.ErrJobRunning)

	releaseOther, err := locker.Acquire(ctx, "analyze", time.Minute)
	require.NoError(t, err)
	releaseOther()

	release()
	release()

	release, err = locker.Acquire(ctx, "ingest", time.Minute)
	require.NoError(t, err)
	release()
}

func newRedisLocker(t *testing.T) (*service.RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return service.NewRedisLocker(client), mr
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "ingest", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("scrape-analyzer:lock:ingest"))
	assert.Equal(t, time.Minute, mr.TTL("scrape-analyzer:lock:ingest"))

	_, err = locker.Acquire(ctx, "ingest", time.Minute)
	require.ErrorIs(t, err, service.ErrJobRunning)

	release()
	assert.False(t, mr.Exists("scrape-analyzer:lock:ingest"))

	release, err = locker.Acquire(ctx, "ingest", time.Minute)
	require.NoError(t, err)
	release()
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldOwner(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	staleRelease, err := locker.Acquire(ctx, "analyze", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	release, err := locker.Acquire(ctx, "analyze", time.Minute)
	require.NoError(t, err, "expired lock can be taken over")

	staleRelease()
	assert.True(t, mr.Exists("scrape-analyzer:lock:analyze"), "new owner keeps the lock")

	release()
	assert.False(t, mr.Exists("scrape-analyzer:lock:analyze"))
}

func TestRedisLocker_RenewsWhileHeld(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	const key = "scrape-analyzer:lock:analyze"
	ttl := 300 * time.Millisecond

	release, err := locker.Acquire(context.Background(), "analyze", ttl)
	require.NoError(t, err)

	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) > 200*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond, "lock expiry is pushed forward")

	mr.FastForward(250 * time.Millisecond)
	assert.True(t, mr.Exists(key), "lock outlives its original ttl")

	_, err = locker.Acquire(context.Background(), "analyze", ttl)
	require.ErrorIs(t, err, service.ErrJobRunning)

	release()
	assert.False(t, mr.Exists(key))
}

func TestRedisLocker_DoesNotRenewForeignLock(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	const key = "scrape-analyzer:lock:ingest"

	release, err := locker.Acquire(context.Background(), "ingest", 150*time.Millisecond)
	require.NoError(t, err)
	defer release()

	require.NoError(t, mr.Set(key, "another-instance"))
	time.Sleep(200 * time.Millisecond)

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "another-instance", got)
	assert.Zero(t, mr.TTL(key), "foreign lock is left without an expiry")
}

func TestRedisLocker_RedisDown(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	mr.Close()

	_, err := locker.Acquire(context.Background(), "ingest", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrJobRunning)
}
