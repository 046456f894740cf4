// Package sweepcache implements a process-wide typed cache with per-entry
// TTLs, explicit out-of-band invalidation, and a background sweep that
// reclaims invalidated entries.
//
// Invalidation is decoupled from expiration: a staleness mark forces the next
// Get for a key to miss regardless of remaining TTL, and the next Set clears
// the mark. Every failure mode of a read (absent, expired, stale, or
// undecodable as the requested type) collapses to a miss; callers always
// recompute from the source of truth.
//
// Components:
//   - store.Store: byte store with TTL (in-memory map by default; Ristretto
//     and BigCache adapters available).
//   - codec.Codec[V]: (de)serializes V <-> []byte, so reads copy out.
//   - marker.Marker: staleness marks per key, kept apart from the entries.
//
// Keys:
//
//	<ns>:<key> - entries and marks share the namespaced storage key
//
// Usage pattern:
//
//	v, ok := cache.Get(ctx, k)
//	if !ok {
//	    v = readFromDB(k)
//	    _ = cache.Set(ctx, k, v, 0) // 0 => default TTL
//	}
//	... write path mutates DB, then:
//	_ = cache.Invalidate(ctx, k)
package sweepcache
