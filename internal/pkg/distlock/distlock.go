package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// wait budget or the context ran out.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// DistLock is the interface for a single named distributed lock.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Locker hands out short-lived exclusive sections keyed by an arbitrary
// string, e.g. one per campaign.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// NewLocker picks the best available backend: Redis when a client is given,
// PostgreSQL advisory locks when only a database is given, and an
// in-process keyed mutex otherwise.
func NewLocker(redisClient *redis.Client, db *sql.DB) Locker {
	switch {
	case redisClient != nil:
		return &SpinLocker{
			newLock: func(key string) DistLock { return NewRedisLock(redisClient, key, 30*time.Second) },
			wait:    5 * time.Second,
			poll:    25 * time.Millisecond,
		}
	case db != nil:
		return &SpinLocker{
			newLock: func(key string) DistLock { return NewPGAdvisoryLock(db, key) },
			wait:    5 * time.Second,
			poll:    25 * time.Millisecond,
		}
	default:
		return NewKeyedMutex()
	}
}

// =============================================================================
// SpinLocker: Locker over any DistLock backend
// =============================================================================

// SpinLocker polls a non-blocking DistLock until it is acquired or the wait
// budget runs out. It never blocks indefinitely.
type SpinLocker struct {
	newLock func(key string) DistLock
	wait    time.Duration
	poll    time.Duration
}

// Lock acquires key or returns ErrLockTimeout.
func (l *SpinLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock := l.newLock(key)
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	for {
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = lock.Release(rctx)
			}, nil
		}

		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-deadline.C:
			t.Stop()
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-t.C:
		}
	}
}

// =============================================================================
// KeyedMutex: in-process fallback
// =============================================================================

// KeyedMutex serializes callers per key within one process. Entries are
// reference counted and dropped when no caller holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, e)
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.unref(key, e)
		})
	}, nil
}

func (m *KeyedMutex) unref(key string, e *keyedEntry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// pg_try_advisory_lock is session-scoped, so the lock pins one pooled
// connection from Acquire until Release. The lock is released automatically
// if that connection drops.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn == nil {
		conn, err := l.db.Conn(ctx)
		if err != nil {
			return false, fmt.Errorf("advisory lock connection: %w", err)
		}
		l.conn = conn
	}
	var acquired bool
	if err := l.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		l.closeConn()
		return false, err
	}
	if !acquired {
		l.closeConn()
	}
	return acquired, nil
}

// Release releases the advisory lock and returns its connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	l.closeConn()
	return err
}

func (l *PGAdvisoryLock) closeConn() {
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
}
