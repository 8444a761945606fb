// Package lock provides per-key mutual exclusion. The scheduler keys it
// by slot ID so allocation passes on one slot never interleave while
// different slots proceed in parallel.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker runs fn while holding the lock for key. Implementations return
// ErrLockTimeout when the lock is not acquired within their timeout or
// the context's deadline.
type Locker interface {
	WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error
}

// keyMutex wraps a mutex with a waiter count so idle entries can be
// dropped from the map.
type keyMutex struct {
	mu   sync.Mutex
	refs int
}

// KeyLock is an in-process Locker backed by one mutex per key.
type KeyLock struct {
	mu      sync.Mutex
	locks   map[int64]*keyMutex
	timeout time.Duration
}

// NewKeyLock creates a KeyLock. A non-positive timeout waits until the
// context is done.
func NewKeyLock(timeout time.Duration) *KeyLock {
	return &KeyLock{
		locks:   make(map[int64]*keyMutex),
		timeout: timeout,
	}
}

// acquire returns the entry for key with its reference taken.
func (kl *KeyLock) acquire(key int64) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m, ok := kl.locks[key]
	if !ok {
		m = &keyMutex{}
		kl.locks[key] = m
	}
	m.refs++
	return m
}

// release drops a reference and forgets the entry when nobody uses it.
func (kl *KeyLock) release(key int64, m *keyMutex) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m.refs--
	if m.refs == 0 {
		delete(kl.locks, key)
	}
}

func (kl *KeyLock) lockKey(key int64) {
	kl.acquire(key).mu.Lock()
}

func (kl *KeyLock) unlockKey(key int64) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		return
	}
	m.mu.Unlock()
	kl.release(key, m)
}

// tryLockKey acquires the lock without blocking.
func (kl *KeyLock) tryLockKey(key int64) bool {
	m := kl.acquire(key)
	if m.mu.TryLock() {
		return true
	}
	kl.release(key, m)
	return false
}

// lockContext waits for the lock until timeout or ctx ends. It reports
// whether the lock was acquired.
func (kl *KeyLock) lockContext(ctx context.Context, key int64, timeout time.Duration) bool {
	m := kl.acquire(key)

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		close(done)
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-done:
		return true
	case <-ctx.Done():
		// The waiter still gets the mutex eventually; hand it straight back.
		go func() {
			<-done
			m.mu.Unlock()
			kl.release(key, m)
		}()
		return false
	}
}

// isHeld reports whether key is currently held. Point-in-time only.
func (kl *KeyLock) isHeld(key int64) bool {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		return false
	}
	if m.mu.TryLock() {
		m.mu.Unlock()
		return false
	}
	return true
}

// WithLock implements Locker.
func (kl *KeyLock) WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	if !kl.lockContext(ctx, key, kl.timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
	defer kl.unlockKey(key)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
