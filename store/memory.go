package store

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time // zero => no deadline
}

// Memory is the default in-process store: a map guarded by an RWMutex.
//
// Memory never evicts on its own. Expired entries are kept until overwritten,
// deleted, or reclaimed through DeleteExpired; deadline enforcement on reads
// belongs to the cache layer. This keeps Get a pure read under the shared
// lock.
type Memory struct {
	mu sync.RWMutex
	m  map[string]memEntry
}

var (
	_ Store         = (*Memory)(nil)
	_ Lener         = (*Memory)(nil)
	_ ExpiredReaper = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{m: make(map[string]memEntry)}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := time.Now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	// copy in so later caller mutations of value cannot reach the map
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.m[key] = memEntry{value: v, createdAt: now, expiresAt: exp}
	s.mu.Unlock()
	return true, nil
}

func (s *Memory) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// DeleteExpired removes all entries past their deadline.
// O(n) full scan; simple and predictable.
func (s *Memory) DeleteExpired(now time.Time) int {
	removed := 0
	s.mu.Lock()
	for k, e := range s.m {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			delete(s.m, k)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

func (s *Memory) Close(_ context.Context) error { return nil }
