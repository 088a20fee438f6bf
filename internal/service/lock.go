package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dhronas-fees/internal/domain"

	"github.com/google/uuid"
)

// Locker serializes work on one key, typically a student id.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type redisLockStore interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// RedisLocker takes a token lock in Redis so several API instances agree on
// who is allocating a student's payment.
type RedisLocker struct {
	redis redisLockStore
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

func NewRedisLocker(redis redisLockStore, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{redis: redis, ttl: ttl, wait: wait, poll: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "locks:student:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.redis.TryLock(ctx, lockKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", lockKey, err)
		}
		if ok {
			return func() {
				// the caller's context may already be cancelled
				unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := l.redis.Unlock(unlockCtx, lockKey, token); err != nil {
					log.Printf("[LOCK] release %s failed: %v", lockKey, err)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, domain.ErrAllocationBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

// LocalLocker serializes per key inside one process. It is used when Redis
// is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
	wait  time.Duration
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &LocalLocker{locks: make(map[string]*localLock), wait: wait}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case lk.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.ch
				l.release(key, lk)
			})
		}, nil
	case <-timer.C:
		l.release(key, lk)
		return nil, domain.ErrAllocationBusy
	case <-ctx.Done():
		l.release(key, lk)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
