package sweepcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/sweepcache/codec"
	mk "github.com/unkn0wn-root/sweepcache/marker"
	st "github.com/unkn0wn-root/sweepcache/store"
)

// Cache is the high-level typed cache API. V is the caller's value type;
// serialization is handled by a pluggable Codec[V]. One Cache per logical
// resource keeps keys implicitly typed.
type Cache[V any] interface {
	// Get returns the cached value for key. ok=false means miss: key absent,
	// entry expired, key marked stale, or stored bytes not decodable as V.
	// Get never returns an error; callers treat every miss as "recompute".
	Get(ctx context.Context, key string) (v V, ok bool)

	// Set unconditionally overwrites the entry for key with deadline now+ttl
	// (ttl == 0 => the cache's default TTL) and clears any staleness mark.
	// The returned error is ErrClosed after Close, or a codec/store failure
	// for non-default backends; the default in-memory path cannot fail.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Invalidate marks key stale: every Get before the next Set misses,
	// regardless of remaining TTL. Idempotent. Like Set, it is a write and
	// returns ErrClosed after Close.
	Invalidate(ctx context.Context, key string) error

	// GetOrLoad returns the cached value or recomputes it via fill, caching
	// the result with the given ttl (0 => default). Concurrent loads for the
	// same key are collapsed into one fill call.
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, fill func(context.Context) (V, error)) (V, error)

	// Stale reports whether key currently carries a staleness mark.
	Stale(ctx context.Context, key string) bool

	// Info returns entry metadata for diagnostics without counting as a
	// hit or miss.
	Info(ctx context.Context, key string) (EntryInfo, bool)

	// Sweep runs one reclamation pass immediately and returns the number of
	// entries removed. The same pass runs periodically in the background.
	Sweep(ctx context.Context) int

	// Len returns the store's entry count, or -1 if the store cannot tell.
	Len() int

	Enabled() bool
	Close(context.Context) error
}

// EntryInfo describes a stored entry for diagnostics.
type EntryInfo struct {
	CreatedAt time.Time
	ExpiresAt time.Time
	Stale     bool
}

// Options tune the cache. Only Namespace and Codec are required; others have
// sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions, e.g. "todos", "users"
	Codec     c.Codec[V]

	Store         st.Store      // nil => in-memory store.Memory
	Marker        mk.Marker     // nil => marker.Local (in-process)
	Logger        Logger        // nil => NopLogger
	Metrics       Metrics       // nil => NopMetrics
	DefaultTTL    time.Duration // 0 => 1m
	SweepInterval time.Duration // 0 => 1m
	SweepExpired  bool          // also reclaim entries past their deadline (needs store.ExpiredReaper)
	Disabled      bool          // default false (enabled)
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
