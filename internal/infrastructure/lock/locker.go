package lock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker 按账户维度加锁
//
// Acquire 对 keys 去重并按字典序依次加锁（全序，避免两笔反向转账互相等待），
// 任一 key 失败时释放已获得的锁。release 可重复调用。
type Locker interface {
	Acquire(ctx context.Context, owner string, keys ...string) (release func(), err error)
}

func sortedKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// ============================================================================
// RedisLocker 多实例部署时使用
// ============================================================================

type RedisLocker struct {
	client        *redis.Client
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		prefix:        "ledger:lock:account:",
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, owner string, keys ...string) (func(), error) {
	var held []*DistributedLock

	release := func() {
		// 释放不受调用方 ctx 影响，超时兜底由 TTL 负责
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Unlock(ctx)
		}
		held = nil
	}

	for _, key := range sortedKeys(keys) {
		l := NewDistributedLock(r.client, r.prefix+key, owner, r.ttl)
		if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
			release()
			return nil, fmt.Errorf("锁定账户 %s 失败: %w", key, err)
		}
		held = append(held, l)
	}

	return release, nil
}

// ============================================================================
// LocalLocker 单进程内的账户锁
// ============================================================================

type localEntry struct {
	ch   chan struct{}
	refs int
}

type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, _ string, keys ...string) (func(), error) {
	var held []string

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
		held = nil
	}

	for _, key := range sortedKeys(keys) {
		if err := l.lock(ctx, key); err != nil {
			release()
			return nil, fmt.Errorf("锁定账户 %s 失败: %w", key, err)
		}
		held = append(held, key)
	}

	return release, nil
}

func (l *LocalLocker) lock(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.deref(key, e)
		return ctx.Err()
	}
}

func (l *LocalLocker) unlock(key string) {
	l.mu.Lock()
	e := l.entries[key]
	l.mu.Unlock()
	<-e.ch
	l.deref(key, e)
}

func (l *LocalLocker) deref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
