package sweepcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/sweepcache/codec"
	"github.com/unkn0wn-root/sweepcache/internal/wire"
	"github.com/unkn0wn-root/sweepcache/marker"
	"github.com/unkn0wn-root/sweepcache/store"
)

const (
	defaultTTL   = time.Minute
	defaultSweep = time.Minute
)

type cache[V any] struct {
	ns      string
	store   store.Store
	codec   codec.Codec[V]
	marks   marker.Marker
	log     Logger
	metrics Metrics

	enabled bool

	defaultTTL    time.Duration
	sweepInterval time.Duration
	sweepExpired  bool

	// optional store capabilities, resolved once
	lener  store.Lener
	reaper store.ExpiredReaper

	sf singleflight.Group

	// background sweep
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("sweepcache: namespace is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("sweepcache: codec is required")
	}

	c := &cache[V]{
		ns:    opts.Namespace,
		codec: opts.Codec,
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.metrics = coalesce[Metrics](opts.Metrics, NopMetrics{})
	c.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	c.sweepInterval = coalesce[time.Duration](opts.SweepInterval, defaultSweep)
	c.sweepExpired = opts.SweepExpired

	if opts.Store != nil {
		c.store = opts.Store
	} else {
		c.store = store.NewMemory()
	}
	if opts.Marker != nil {
		c.marks = opts.Marker
	} else {
		c.marks = marker.NewLocal()
	}

	c.lener, _ = c.store.(store.Lener)
	c.reaper, _ = c.store.(store.ExpiredReaper)
	if c.sweepExpired && c.reaper == nil {
		c.log.Warn("SweepExpired set but store cannot reap by deadline", Fields{"ns": c.ns})
	}

	c.enabled = !opts.Disabled

	if c.enabled {
		c.ticker = time.NewTicker(c.sweepInterval)
		c.stopCh = make(chan struct{})
		c.closeWg.Add(1)
		go c.sweepLoop()
	}
	return c, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.stopCh != nil {
			close(c.stopCh)
			c.closeWg.Wait()
			if c.ticker != nil {
				c.ticker.Stop()
			}
		}
	})
	if c.marks != nil {
		_ = c.marks.Close(ctx)
	}
	if c.store != nil {
		return c.store.Close(ctx)
	}
	return nil
}

// Get collapses every failure mode to a miss. It checks the staleness mark
// first and the entry map second, under separate locks; a mark set in the gap
// between the two is indistinguishable from a value going stale right after
// being read, which callers must tolerate anyway.
func (c *cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	if !c.enabled {
		return zero, false
	}
	k := c.storageKey(key)

	if c.isStale(ctx, k) {
		c.metrics.Miss(MissStale)
		return zero, false
	}

	raw, ok, err := c.store.Get(ctx, k)
	if err != nil {
		c.log.Warn("store get error", Fields{"key": key, "err": err})
		c.metrics.Miss(MissNotFound)
		return zero, false
	}
	if !ok {
		c.metrics.Miss(MissNotFound)
		return zero, false
	}

	ent, err := wire.Decode(raw)
	if err != nil {
		// corrupt/foreign bytes. report a miss; cleanup is the sweep's job,
		// a read never mutates the store
		c.log.Debug("undecodable entry", Fields{"key": key, "err": err})
		c.metrics.Miss(MissDecode)
		return zero, false
	}
	if !time.Now().Before(ent.ExpiresAt) {
		c.metrics.Miss(MissExpired)
		return zero, false
	}

	v, err := c.codec.Decode(ent.Payload)
	if err != nil {
		// stored under a different type than requested; same as not found
		c.log.Debug("payload decode miss", Fields{"key": key, "err": err})
		c.metrics.Miss(MissDecode)
		return zero, false
	}
	c.metrics.Hit()
	return v, true
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if c.closed.Load() {
		return ErrClosed
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	payload, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("sweepcache: encode %q: %w", key, err)
	}

	now := time.Now()
	b := wire.Encode(now, now.Add(ttl), payload)
	k := c.storageKey(key)

	ok, err := c.store.Set(ctx, k, b, ttl)
	if err != nil {
		return fmt.Errorf("sweepcache: set %q: %w", key, err)
	}
	if !ok {
		c.log.Debug("set rejected by store (pressure)", Fields{"key": key})
	}

	// new data supersedes whatever reason the key was invalidated for
	if err := c.marks.Clear(ctx, k); err != nil {
		c.log.Warn("mark clear error", Fields{"key": key, "err": err})
	}

	c.metrics.Set()
	c.reportLen()
	return nil
}

func (c *cache[V]) Invalidate(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	if c.closed.Load() {
		return ErrClosed
	}
	k := c.storageKey(key)
	if err := c.marks.Mark(ctx, k); err != nil {
		return fmt.Errorf("sweepcache: invalidate %q: %w", key, err)
	}
	c.metrics.Invalidation()
	c.log.Debug("invalidated key", Fields{"key": key})
	return nil
}

func (c *cache[V]) Stale(ctx context.Context, key string) bool {
	if !c.enabled {
		return false
	}
	return c.isStale(ctx, c.storageKey(key))
}

// Info reads entry metadata without touching hit/miss counters.
func (c *cache[V]) Info(ctx context.Context, key string) (EntryInfo, bool) {
	if !c.enabled {
		return EntryInfo{}, false
	}
	k := c.storageKey(key)

	raw, ok, err := c.store.Get(ctx, k)
	if err != nil || !ok {
		return EntryInfo{}, false
	}
	ent, err := wire.Decode(raw)
	if err != nil {
		return EntryInfo{}, false
	}
	return EntryInfo{
		CreatedAt: ent.CreatedAt,
		ExpiresAt: ent.ExpiresAt,
		Stale:     c.isStale(ctx, k),
	}, true
}

// Sweep removes entries for keys currently marked stale, leaving the marks in
// place: a mark without an entry is harmless, the next Get misses on "absent"
// instead of "stale". With SweepExpired it also reaps entries past their
// deadline. Tolerates empty store and empty mark set.
func (c *cache[V]) Sweep(ctx context.Context) int {
	if !c.enabled {
		return 0
	}

	removed := 0
	snap, err := c.marks.Snapshot(ctx)
	if err != nil {
		c.log.Warn("mark snapshot error", Fields{"err": err})
	}
	for _, k := range snap {
		// a mark may outlive its entry (or never have had one); only count
		// keys that actually held something
		_, ok, err := c.store.Get(ctx, k)
		if err != nil {
			c.log.Warn("sweep read error", Fields{"storageKey": k, "err": err})
			continue
		}
		if !ok {
			continue
		}
		if err := c.store.Del(ctx, k); err != nil {
			c.log.Warn("sweep delete error", Fields{"storageKey": k, "err": err})
			continue
		}
		removed++
	}

	if c.sweepExpired && c.reaper != nil {
		removed += c.reaper.DeleteExpired(time.Now())
	}

	if removed > 0 {
		c.log.Debug("sweep pass", Fields{"removed": removed, "stale": len(snap)})
	}
	c.metrics.SweepRemoved(removed)
	c.reportLen()
	return removed
}

func (c *cache[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, fill func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	out, err, _ := c.sf.Do(key, func() (any, error) {
		// re-check: another flight may have filled while we queued
		if v, ok := c.Get(ctx, key); ok {
			return v, nil
		}
		v, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, v, ttl); err != nil {
			// value is still good; caching it just failed
			c.log.Warn("set after load failed", Fields{"key": key, "err": err})
		}
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return out.(V), nil
}

func (c *cache[V]) Len() int {
	if c.lener == nil {
		return -1
	}
	return c.lener.Len()
}

// sweepLoop sleeps between passes holding no lock; the stop signal is polled
// once per interval, so shutdown latency is bounded by the sweep interval.
func (c *cache[V]) sweepLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.Sweep(context.Background())
		case <-c.stopCh:
			return
		}
	}
}

func (c *cache[V]) isStale(ctx context.Context, storageKey string) bool {
	stale, err := c.marks.IsStale(ctx, storageKey)
	if err != nil {
		// conservative: unknown mark state is treated as stale so callers
		// recompute rather than serve a possibly-invalidated value
		c.log.Warn("mark read error", Fields{"storageKey": storageKey, "err": err})
		return true
	}
	return stale
}

func (c *cache[V]) reportLen() {
	if c.lener != nil {
		c.metrics.EntryCount(c.lener.Len())
	}
}

func (c *cache[V]) storageKey(userKey string) string {
	// isolate by namespace
	return c.ns + ":" + userKey
}
