// Package store defines the storage abstraction used by sweepcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no
// prepended/appended metadata, no re-encoding, no mutation). If a store
// performs internal transforms (e.g., compression), they MUST be fully
// reversed so that the bytes returned by Get are identical to the bytes
// provided to Set.
//
// The cache owns the keyspace "<namespace>:". External code MUST NOT write
// values under a cache's namespace prefix. Foreign writes may fail strict
// envelope validation and be reported as misses.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with TTLs.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an internal error happens, return (nil, false, err).
	// Get is a read: implementations should not mutate their contents as a
	// side effect of a lookup.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL, overwriting any previous entry.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Lener is implemented by stores that can report their current entry count.
// Used for the entry-count gauge; optional.
type Lener interface {
	Len() int
}

// ExpiredReaper is implemented by stores that can drop entries past their
// deadline in bulk. The sweep uses it when expired-entry reclamation is
// enabled; optional.
type ExpiredReaper interface {
	// DeleteExpired removes entries whose deadline is at or before now and
	// returns how many were removed.
	DeleteExpired(now time.Time) int
}
