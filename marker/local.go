package marker

import (
	"context"
	"sync"
	"time"
)

// Local keeps staleness marks in-process (default).
// The mark timestamp is kept for diagnostics only; presence is what counts.
type Local struct {
	mu    sync.RWMutex
	marks map[string]time.Time
}

var _ Marker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{marks: make(map[string]time.Time)}
}

func (l *Local) Mark(_ context.Context, k string) error {
	now := time.Now()
	l.mu.Lock()
	if _, ok := l.marks[k]; !ok {
		l.marks[k] = now
	}
	l.mu.Unlock()
	return nil
}

func (l *Local) IsStale(_ context.Context, k string) (bool, error) {
	l.mu.RLock()
	_, ok := l.marks[k]
	l.mu.RUnlock()
	return ok, nil
}

func (l *Local) Clear(_ context.Context, k string) error {
	l.mu.Lock()
	delete(l.marks, k)
	l.mu.Unlock()
	return nil
}

// Snapshot acquires the read lock once and copies all marked keys out.
// The sweep iterates the copy with no lock held.
func (l *Local) Snapshot(_ context.Context) ([]string, error) {
	l.mu.RLock()
	out := make([]string, 0, len(l.marks))
	for k := range l.marks {
		out = append(out, k)
	}
	l.mu.RUnlock()
	return out, nil
}

// MarkedAt returns when k was first marked; zero time if not marked.
// Diagnostics helper, not part of Marker.
func (l *Local) MarkedAt(k string) time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.marks[k]
}

func (l *Local) Close(_ context.Context) error { return nil }
