// Package marker tracks staleness marks: per-key signals that the next cache
// read must miss regardless of the entry's remaining TTL. Marks live apart
// from the entry store so invalidation never touches entry locks.
package marker

import (
	"context"
)

// Marker abstracts where staleness marks live.
type Marker interface {
	// Mark records key as stale. Idempotent.
	Mark(ctx context.Context, storageKey string) error
	// IsStale reports whether key is currently marked; missing => false.
	IsStale(ctx context.Context, storageKey string) (bool, error)
	// Clear removes the mark for key, if any.
	Clear(ctx context.Context, storageKey string) error
	// Snapshot returns the keys currently marked, in no particular order.
	Snapshot(ctx context.Context) ([]string, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
