package services

import (
	"context"
	"slices"
	"sync"
	"time"
)

// LockManager serializes work on ledger entities. Acquire takes every key in
// ascending order and waits at most the manager's bounded wait for each; on
// failure nothing stays held.
type LockManager interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

func accountKey(id string) string  { return "account:" + id }
func employeeKey(id string) string { return "employee:" + id }
func entryKey(id string) string    { return "entry:" + id }

// canonicalKeys sorts and dedupes keys so two callers can never wait on each
// other in opposite orders.
func canonicalKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLockManager is a LockManager for a single process.
type MemoryLockManager struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
	wait  time.Duration
}

func NewMemoryLockManager(wait time.Duration) *MemoryLockManager {
	return &MemoryLockManager{
		locks: make(map[string]*keyedLock),
		wait:  wait,
	}
}

func (m *MemoryLockManager) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = canonicalKeys(keys)
	held := make([]string, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.unlock(held[i])
		}
	}

	for _, key := range keys {
		if err := m.lock(ctx, key); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (m *MemoryLockManager) lock(ctx context.Context, key string) error {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	timer := time.NewTimer(m.wait)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		m.drop(key, l)
		return errContention
	case <-ctx.Done():
		m.drop(key, l)
		return ctx.Err()
	}
}

func (m *MemoryLockManager) unlock(key string) {
	m.mu.Lock()
	l := m.locks[key]
	m.mu.Unlock()

	<-l.ch
	m.drop(key, l)
}

func (m *MemoryLockManager) drop(key string, l *keyedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}
