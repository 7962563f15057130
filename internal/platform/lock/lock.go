// Package lock serializes read-modify-write cycles on a budget record or a
// procedure's cost breakdown. The
// Redis implementation coordinates multiple server replicas; the local one
// covers single-process deployments and tests.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carefin/carefin/internal/platform/metrics"
)

// ErrNotObtained is returned when the lock could not be acquired before the
// retry budget or the context ran out.
var ErrNotObtained = errors.New("lock not obtained")

// Locker acquires a named exclusive lock. The returned release func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// BudgetKey is the lock name for one department's budget period.
func BudgetKey(departmentID string, period time.Time) string {
	return fmt.Sprintf("budget:%s:%s", departmentID, period.Format("2006-01"))
}

// ProcedureKey is the lock name for one procedure's cost breakdown.
func ProcedureKey(procedureID string) string {
	return "procedure-cost:" + procedureID
}

type RedisOptions struct {
	TTL          time.Duration
	RetryCount   int
	RetryBackoff time.Duration
}

// RedisLocker obtains locks through bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
	opts   RedisOptions
	logger zerolog.Logger
}

func NewRedisLocker(rdb redis.UniversalClient, opts RedisOptions, logger zerolog.Logger) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), opts: opts, logger: logger}
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	var retry redislock.RetryStrategy = redislock.NoRetry()
	if l.opts.RetryCount > 0 {
		retry = redislock.LimitRetry(redislock.ExponentialBackoff(l.opts.RetryBackoff, l.opts.TTL/4), l.opts.RetryCount)
	}

	lk, err := l.client.Obtain(ctx, key, l.opts.TTL, &redislock.Options{RetryStrategy: retry})
	metrics.BudgetLockWaitSeconds.Observe(time.Since(start).Seconds())
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		// Release on a fresh context so a cancelled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn().Err(err).Str("key", key).Msg("release lock")
		}
	}, nil
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotObtained, key, ctx.Err())
	}
	metrics.BudgetLockWaitSeconds.Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

func (l *LocalLocker) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
