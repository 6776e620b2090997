package distlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// RedisLock
// =============================================================================

func TestRedisLock_ExclusiveUntilReleased(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign:1", time.Minute)
	b := NewRedisLock(client, "campaign:1", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	// b does not own the lock, so its release is a no-op.
	require.NoError(t, b.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewLocker_RedisSerializes(t *testing.T) {
	client := newTestRedis(t)
	locker := NewLocker(client, nil)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Lock(context.Background(), "campaign:x")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestSpinLocker_TimesOut(t *testing.T) {
	client := newTestRedis(t)
	holder := NewRedisLock(client, "busy", time.Minute)
	ok, err := holder.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	l := &SpinLocker{
		newLock: func(key string) DistLock { return NewRedisLock(client, key, time.Minute) },
		wait:    30 * time.Millisecond,
		poll:    5 * time.Millisecond,
	}
	_, err = l.Lock(context.Background(), "busy")
	assert.True(t, errors.Is(err, ErrLockTimeout))
}

// =============================================================================
// KeyedMutex
// =============================================================================

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	r1, err := m.Lock(ctx, "a")
	require.NoError(t, err)
	r2, err := m.Lock(ctx, "b")
	require.NoError(t, err, "different keys must not block each other")
	r1()
	r2()
	assert.Empty(t, m.locks)
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	m := NewKeyedMutex()
	release, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "a")
	assert.True(t, errors.Is(err, ErrLockTimeout))
}

func TestKeyedMutex_ReleaseIsIdempotent(t *testing.T) {
	m := NewKeyedMutex()
	release, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	release()
	release()

	again, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()
}
