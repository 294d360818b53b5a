package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrJobRunning is returned when another ingest or analyze run holds the lock.
var ErrJobRunning = errors.New("job already running")

// Lock names.
const (
	LockIngest  = "ingest"
	LockAnalyze = "analyze"
)

// Locker grants exclusive, time-bounded ownership of a named operation.
type Locker interface {
	// Acquire returns ErrJobRunning when name is already held.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// LocalLocker serializes operations within one process. The TTL is ignored.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}

const (
	redisLockPrefix     = "scrape-analyzer:lock:"
	redisReleaseTimeout = 5 * time.Second
	minRenewableTTL     = 30 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while the key holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker shares locks across instances with SET NX PX. A held lock is
// extended every third of its TTL until released, so a long run keeps it.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := redisLockPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	stop := make(chan struct{})
	go l.keepAlive(context.WithoutCancel(ctx), key, token, ttl, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			// The caller's context is often already cancelled when releasing.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisReleaseTimeout)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, nil
}

// keepAlive renews the lock until stop closes or the key no longer holds
// token. Transient Redis errors are retried on the next tick.
func (l *RedisLocker) keepAlive(ctx context.Context, key, token string, ttl time.Duration, stop <-chan struct{}) {
	if ttl < minRenewableTTL {
		return
	}

	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(ctx, redisReleaseTimeout)
			extended, err := extendScript.Run(renewCtx, l.client, []string{key}, token, ttl.Milliseconds()).Int()
			cancel()
			if err == nil && extended == 0 {
				return
			}
		}
	}
}

type heldLockKey struct{ name string }

// withHeldLock marks ctx as running under the named lock.
func withHeldLock(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, heldLockKey{name: name}, true)
}

func holdsLock(ctx context.Context, name string) bool {
	held, _ := ctx.Value(heldLockKey{name: name}).(bool)
	return held
}

// acquireLock takes the named lock unless ctx already carries it (a job
// started by Jobs, which locks before returning to the caller).
func acquireLock(ctx context.Context, locker Locker, name string, ttl time.Duration) (context.Context, func(), error) {
	if locker == nil || holdsLock(ctx, name) {
		return ctx, func() {}, nil
	}

	release, err := locker.Acquire(ctx, name, ttl)
	if err != nil {
		return ctx, nil, err
	}
	return withHeldLock(ctx, name), release, nil
}
