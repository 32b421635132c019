// Package dedup suppresses repeated notifications for the same
// (conversation, issue) pair within a time window.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Store persists the last allowed notification time per key.
//
// CheckAndSet must be atomic: two concurrent calls for the same key within
// the window can never both return true.
type Store interface {
	// CheckAndSet allows when no entry exists for key or the entry is at least
	// window old; on allow it records now.
	CheckAndSet(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error)
	// SweepExpired removes entries at least window old and returns how many.
	SweepExpired(ctx context.Context, now time.Time, window time.Duration) (int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: map[string]time.Time{}}
}

func (m *MemoryStore) CheckAndSet(_ context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at, ok := m.seen[key]; ok && now.Sub(at) < window {
		return false, nil
	}
	m.seen[key] = now
	return true, nil
}

func (m *MemoryStore) SweepExpired(_ context.Context, now time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, at := range m.seen {
		if now.Sub(at) >= window {
			delete(m.seen, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen), nil
}

func (m *MemoryStore) Close() error { return nil }
