package sweepcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	c "github.com/unkn0wn-root/sweepcache/codec"
	"github.com/unkn0wn-root/sweepcache/store"
)

type todo struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// recordingMetrics counts events; safe for concurrent use because the sweep
// loop reports from its own goroutine.
type recordingMetrics struct {
	mu            sync.Mutex
	hits, sets    int
	invalidations int
	misses        map[MissReason]int
	sweepRemoved  int
	lastCount     int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{misses: make(map[MissReason]int)}
}

func (m *recordingMetrics) Hit() { m.mu.Lock(); m.hits++; m.mu.Unlock() }
func (m *recordingMetrics) Miss(r MissReason) {
	m.mu.Lock()
	m.misses[r]++
	m.mu.Unlock()
}
func (m *recordingMetrics) Set()          { m.mu.Lock(); m.sets++; m.mu.Unlock() }
func (m *recordingMetrics) Invalidation() { m.mu.Lock(); m.invalidations++; m.mu.Unlock() }
func (m *recordingMetrics) SweepRemoved(n int) {
	m.mu.Lock()
	m.sweepRemoved += n
	m.mu.Unlock()
}
func (m *recordingMetrics) EntryCount(n int) { m.mu.Lock(); m.lastCount = n; m.mu.Unlock() }

func (m *recordingMetrics) snapshot() (hits, sets, invs int, misses map[MissReason]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[MissReason]int, len(m.misses))
	for k, v := range m.misses {
		cp[k] = v
	}
	return m.hits, m.sets, m.invalidations, cp
}

func newTestCache(t *testing.T, ns string, optsOpt func(*Options[todo])) Cache[todo] {
	t.Helper()
	opts := Options[todo]{
		Namespace: ns,
		Codec:     c.JSON[todo]{},
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[todo](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	return cc
}

func mustImpl[V any](t *testing.T, cc Cache[V]) *cache[V] {
	t.Helper()
	impl, ok := cc.(*cache[V])
	if !ok {
		t.Fatalf("unexpected concrete type for Cache")
	}
	return impl
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New[todo](Options[todo]{Codec: c.JSON[todo]{}}); err == nil {
		t.Fatalf("expected error for missing namespace")
	}
	if _, err := New[todo](Options[todo]{Namespace: "x"}); err == nil {
		t.Fatalf("expected error for missing codec")
	}
}

func TestGetMissesForUnknownKey(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", nil)

	if v, ok := cc.Get(ctx, "never-written"); ok {
		t.Fatalf("expected miss, got %v", v)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", nil)

	want := todo{ID: 1, Title: "buy milk"}
	if err := cc.Set(ctx, "t:1", want, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := cc.Get(ctx, "t:1")
	if !ok || got != want {
		t.Fatalf("Get: ok=%v got=%v want=%v", ok, got, want)
	}

	info, ok := cc.Info(ctx, "t:1")
	if !ok {
		t.Fatalf("Info: no entry")
	}
	if info.ExpiresAt.Before(info.CreatedAt) {
		t.Fatalf("ExpiresAt %v before CreatedAt %v", info.ExpiresAt, info.CreatedAt)
	}
	if info.Stale {
		t.Fatalf("fresh entry reported stale")
	}
}

func TestSetOverwritesWholesale(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", nil)

	_ = cc.Set(ctx, "k", todo{ID: 1, Title: "one"}, time.Minute)
	_ = cc.Set(ctx, "k", todo{ID: 2, Title: "two"}, time.Minute)

	got, ok := cc.Get(ctx, "k")
	if !ok || got.ID != 2 || got.Title != "two" {
		t.Fatalf("overwrite not visible: ok=%v got=%v", ok, got)
	}
	if cc.Len() != 1 {
		t.Fatalf("Len=%d after overwrite", cc.Len())
	}
}

func TestExpiryObservedLazily(t *testing.T) {
	ctx := context.Background()
	m := newRecordingMetrics()
	cc := newTestCache(t, "todos", func(o *Options[todo]) {
		o.Metrics = m
		o.SweepInterval = time.Hour // keep the sweeper out of this test
	})

	_ = cc.Set(ctx, "k", todo{ID: 1}, 20*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if _, ok := cc.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after deadline")
	}
	_, _, _, misses := m.snapshot()
	if misses[MissExpired] != 1 {
		t.Fatalf("expected one expired miss, got %v", misses)
	}
	// the reader must not reclaim; the entry lingers until swept or overwritten
	if cc.Len() != 1 {
		t.Fatalf("Len=%d, read reclaimed the entry", cc.Len())
	}
}

func TestInvalidateForcesMissDespiteTTL(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", nil)

	v := todo{ID: 7, Title: "fresh"}
	_ = cc.Set(ctx, "k", v, time.Hour)

	if err := cc.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := cc.Get(ctx, "k"); ok {
		t.Fatalf("expected miss for invalidated key with hours of TTL left")
	}
	if !cc.Stale(ctx, "k") {
		t.Fatalf("Stale=false after Invalidate")
	}

	// idempotent: a second Invalidate changes nothing observable
	if err := cc.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("second Invalidate: %v", err)
	}
	if _, ok := cc.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after repeated Invalidate")
	}

	// Set clears the mark
	v2 := todo{ID: 7, Title: "recomputed"}
	if err := cc.Set(ctx, "k", v2, time.Hour); err != nil {
		t.Fatalf("Set after Invalidate: %v", err)
	}
	if cc.Stale(ctx, "k") {
		t.Fatalf("mark survived Set")
	}
	got, ok := cc.Get(ctx, "k")
	if !ok || got != v2 {
		t.Fatalf("Get after recompute: ok=%v got=%v", ok, got)
	}
}

func TestTypeMismatchIsMissNotFault(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()

	nums, err := New[int](Options[int]{
		Namespace: "typed",
		Codec:     c.JSON[int]{},
		Store:     shared,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = nums.Close(ctx) })

	m := newRecordingMetrics()
	todos, err := New[todo](Options[todo]{
		Namespace: "typed",
		Codec:     c.JSON[todo]{},
		Store:     shared,
		Metrics:   m,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = todos.Close(ctx) })

	if err := nums.Set(ctx, "k", 42, time.Minute); err != nil {
		t.Fatalf("Set int: %v", err)
	}
	// same namespace, same key, wrong type: a miss, never a panic or error
	if v, ok := todos.Get(ctx, "k"); ok {
		t.Fatalf("expected decode miss, got %v", v)
	}
	_, _, _, misses := m.snapshot()
	if misses[MissDecode] != 1 {
		t.Fatalf("expected one decode miss, got %v", misses)
	}

	// the right-typed cache still hits
	if v, ok := nums.Get(ctx, "k"); !ok || v != 42 {
		t.Fatalf("int Get: ok=%v v=%v", ok, v)
	}
}

func TestForeignBytesAreMissAndNotReclaimedByRead(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", nil)
	impl := mustImpl(t, cc)

	k := impl.storageKey("bad")
	if ok, err := impl.store.Set(ctx, k, []byte("not-an-envelope"), time.Minute); err != nil || !ok {
		t.Fatalf("inject: ok=%v err=%v", ok, err)
	}

	if _, ok := cc.Get(ctx, "bad"); ok {
		t.Fatalf("expected miss on foreign bytes")
	}
	// reads are pure: the bytes stay until overwritten or swept
	if _, ok, _ := impl.store.Get(ctx, k); !ok {
		t.Fatalf("read deleted the entry")
	}
}

func TestConcurrentSetsLeaveOneConsistentValue(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", nil)

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			if err := cc.Set(ctx, "k", todo{ID: i, Title: fmt.Sprintf("writer-%d", i)}, time.Minute); err != nil {
				t.Errorf("Set: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, ok := cc.Get(ctx, "k")
	if !ok {
		t.Fatalf("expected a value after %d racing writers", n)
	}
	if got.ID < 0 || got.ID >= n || got.Title != fmt.Sprintf("writer-%d", got.ID) {
		t.Fatalf("torn value: %+v", got)
	}
}

func TestSweepRemovesInvalidatedEntries(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", func(o *Options[todo]) {
		o.SweepInterval = time.Hour // manual trigger only
	})

	_ = cc.Set(ctx, "k", todo{ID: 1}, time.Hour)
	_ = cc.Invalidate(ctx, "k")

	if n := cc.Sweep(ctx); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if cc.Len() != 0 {
		t.Fatalf("Len=%d after sweep", cc.Len())
	}
	// the mark is left as-is; the next Get misses on "absent" instead
	if !cc.Stale(ctx, "k") {
		t.Fatalf("sweep cleared the mark")
	}

	// a later Set proceeds normally and clears the mark
	v2 := todo{ID: 2, Title: "reborn"}
	if err := cc.Set(ctx, "k", v2, time.Minute); err != nil {
		t.Fatalf("Set after sweep: %v", err)
	}
	got, ok := cc.Get(ctx, "k")
	if !ok || got != v2 {
		t.Fatalf("Get after re-set: ok=%v got=%v", ok, got)
	}

	// sweeping with nothing marked and nothing stored is a no-op
	_ = cc.Set(ctx, "k", v2, time.Minute)
	if n := cc.Sweep(ctx); n != 0 {
		t.Fatalf("no-op sweep removed %d", n)
	}
}

func TestSweepCountsOnlyEntriesThatExisted(t *testing.T) {
	ctx := context.Background()
	m := newRecordingMetrics()
	cc := newTestCache(t, "todos", func(o *Options[todo]) {
		o.Metrics = m
		o.SweepInterval = time.Hour
	})

	// a mark with no entry behind it: nothing to reclaim
	_ = cc.Invalidate(ctx, "never-set")
	if n := cc.Sweep(ctx); n != 0 {
		t.Fatalf("Sweep removed %d for a mark-only key, want 0", n)
	}

	// one real entry plus the dangling mark: exactly one removal
	_ = cc.Set(ctx, "k", todo{ID: 1}, time.Hour)
	_ = cc.Invalidate(ctx, "k")
	if n := cc.Sweep(ctx); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}

	m.mu.Lock()
	total := m.sweepRemoved
	m.mu.Unlock()
	if total != 1 {
		t.Fatalf("sweepRemoved metric=%d, want 1", total)
	}
}

func TestBackgroundSweepRuns(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", func(o *Options[todo]) {
		o.SweepInterval = 20 * time.Millisecond
	})

	_ = cc.Set(ctx, "k", todo{ID: 1}, time.Hour)
	_ = cc.Invalidate(ctx, "k")

	deadline := time.Now().Add(2 * time.Second)
	for cc.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("background sweep never removed the entry, Len=%d", cc.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSweepExpiredOptIn(t *testing.T) {
	ctx := context.Background()

	// default: naturally expired entries are not swept
	keep := newTestCache(t, "keep", func(o *Options[todo]) {
		o.SweepInterval = time.Hour
	})
	_ = keep.Set(ctx, "k", todo{ID: 1}, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_ = keep.Sweep(ctx)
	if keep.Len() != 1 {
		t.Fatalf("default sweep reclaimed an expired-but-not-invalidated entry")
	}

	// opt-in: the sweep also reaps by deadline
	reap := newTestCache(t, "reap", func(o *Options[todo]) {
		o.SweepInterval = time.Hour
		o.SweepExpired = true
	})
	_ = reap.Set(ctx, "k", todo{ID: 1}, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if n := reap.Sweep(ctx); n != 1 {
		t.Fatalf("SweepExpired pass removed %d, want 1", n)
	}
	if reap.Len() != 0 {
		t.Fatalf("Len=%d after expired reap", reap.Len())
	}
}

func TestDisabledCacheIsTransparent(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", func(o *Options[todo]) {
		o.Disabled = true
	})

	if err := cc.Set(ctx, "k", todo{ID: 1}, time.Minute); err != nil {
		t.Fatalf("Set on disabled cache: %v", err)
	}
	if _, ok := cc.Get(ctx, "k"); ok {
		t.Fatalf("disabled cache returned a value")
	}
	if err := cc.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate on disabled cache: %v", err)
	}
	if cc.Enabled() {
		t.Fatalf("Enabled=true for disabled cache")
	}
}

func TestSetAfterCloseReturnsErrClosed(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", nil)

	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := cc.Set(ctx, "k", todo{ID: 1}, time.Minute); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after Close: %v, want ErrClosed", err)
	}
	// Invalidate is a write too
	if err := cc.Invalidate(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Invalidate after Close: %v, want ErrClosed", err)
	}
	// Close is safe to repeat
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// TestMixedConcurrentTraffic runs readers, writers, invalidators, and a fast
// background sweeper against one cache at once. There is nothing to assert
// about which values win; the point is that racing across the mark lock and
// the entry lock never tears a value or trips the race detector.
func TestMixedConcurrentTraffic(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", func(o *Options[todo]) {
		o.SweepInterval = time.Millisecond
		o.SweepExpired = true
	})

	keys := []string{"a", "b", "c", "d"}
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for g := 0; g < 4; g++ {
		wg.Add(3)
		g := g
		go func() { // writer
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				k := keys[(g+i)%len(keys)]
				if err := cc.Set(ctx, k, todo{ID: i, Title: fmt.Sprintf("w%d-%d", g, i)}, 5*time.Millisecond); err != nil {
					t.Errorf("Set: %v", err)
					return
				}
			}
		}()
		go func() { // reader
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				k := keys[(g+i)%len(keys)]
				if v, ok := cc.Get(ctx, k); ok {
					// every write pairs Title "w<g>-<i>" with ID i; a value
					// that breaks the pairing was torn
					if !strings.HasSuffix(v.Title, fmt.Sprintf("-%d", v.ID)) {
						t.Errorf("torn value: %+v", v)
						return
					}
				}
			}
		}()
		go func() { // invalidator
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				if err := cc.Invalidate(ctx, keys[(g+i)%len(keys)]); err != nil {
					t.Errorf("Invalidate: %v", err)
					return
				}
			}
		}()
	}

	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()

	// the cache is still coherent afterward
	want := todo{ID: 99, Title: "final"}
	if err := cc.Set(ctx, "a", want, time.Minute); err != nil {
		t.Fatalf("Set after stress: %v", err)
	}
	if got, ok := cc.Get(ctx, "a"); !ok || got != want {
		t.Fatalf("Get after stress: ok=%v got=%v", ok, got)
	}
}

func TestMetricsTagging(t *testing.T) {
	ctx := context.Background()
	m := newRecordingMetrics()
	cc := newTestCache(t, "todos", func(o *Options[todo]) {
		o.Metrics = m
		o.SweepInterval = time.Hour
	})

	_, _ = cc.Get(ctx, "absent") // not_found
	_ = cc.Set(ctx, "k", todo{ID: 1}, 20*time.Millisecond)
	_, _ = cc.Get(ctx, "k") // hit
	time.Sleep(50 * time.Millisecond)
	_, _ = cc.Get(ctx, "k") // expired
	_ = cc.Set(ctx, "k", todo{ID: 1}, time.Hour)
	_ = cc.Invalidate(ctx, "k")
	_, _ = cc.Get(ctx, "k") // stale

	hits, sets, invs, misses := m.snapshot()
	if hits != 1 || sets != 2 || invs != 1 {
		t.Fatalf("hits=%d sets=%d invalidations=%d", hits, sets, invs)
	}
	want := map[MissReason]int{MissNotFound: 1, MissExpired: 1, MissStale: 1}
	for r, n := range want {
		if misses[r] != n {
			t.Fatalf("miss[%s]=%d want %d (all: %v)", r, misses[r], n, misses)
		}
	}

	// Info is diagnostics only: no counter movement
	before, _, _, _ := m.snapshot()
	_, _ = cc.Info(ctx, "k")
	after, _, _, _ := m.snapshot()
	if before != after {
		t.Fatalf("Info moved the hit counter")
	}
}

func TestGetOrLoadCollapsesConcurrentFills(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", nil)

	var fills atomic.Int64
	fill := func(context.Context) (todo, error) {
		fills.Add(1)
		time.Sleep(20 * time.Millisecond) // let the other goroutines pile up
		return todo{ID: 9, Title: "loaded"}, nil
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, err := cc.GetOrLoad(ctx, "k", time.Minute, fill)
			if err != nil || v.ID != 9 {
				t.Errorf("GetOrLoad: v=%v err=%v", v, err)
			}
		}()
	}
	wg.Wait()

	if got := fills.Load(); got != 1 {
		t.Fatalf("fill ran %d times, want 1", got)
	}
	// subsequent reads hit the cache without filling again
	if _, err := cc.GetOrLoad(ctx, "k", time.Minute, fill); err != nil {
		t.Fatal(err)
	}
	if got := fills.Load(); got != 1 {
		t.Fatalf("fill re-ran on a warm cache: %d", got)
	}
}

func TestGetOrLoadPropagatesFillError(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, "todos", nil)

	boom := errors.New("source of truth down")
	if _, err := cc.GetOrLoad(ctx, "k", time.Minute, func(context.Context) (todo, error) {
		return todo{}, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want fill error", err)
	}
	// nothing was cached
	if _, ok := cc.Get(ctx, "k"); ok {
		t.Fatalf("failed fill left a value behind")
	}
}

// TestTodosEndToEnd mirrors the read/invalidate/recompute cycle of a CRUD
// application sitting on top of the cache.
func TestTodosEndToEnd(t *testing.T) {
	ctx := context.Background()

	cc, err := New[[]todo](Options[[]todo]{
		Namespace:     "pages",
		Codec:         c.JSON[[]todo]{},
		SweepInterval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cc.Close(ctx) })

	itemA := todo{ID: 1, Title: "item A"}
	if err := cc.Set(ctx, "todos", []todo{itemA}, 900*time.Second); err != nil {
		t.Fatal(err)
	}
	got, ok := cc.Get(ctx, "todos")
	if !ok || len(got) != 1 || got[0] != itemA {
		t.Fatalf("first read: ok=%v got=%v", ok, got)
	}

	// a write path inserts item B into the source of truth and invalidates
	itemB := todo{ID: 2, Title: "item B"}
	if err := cc.Invalidate(ctx, "todos"); err != nil {
		t.Fatal(err)
	}
	if _, ok := cc.Get(ctx, "todos"); ok {
		t.Fatalf("read served a stale todo list")
	}

	// the next reader recomputes and repopulates
	if err := cc.Set(ctx, "todos", []todo{itemA, itemB}, 900*time.Second); err != nil {
		t.Fatal(err)
	}
	got, ok = cc.Get(ctx, "todos")
	if !ok || len(got) != 2 || got[0] != itemA || got[1] != itemB {
		t.Fatalf("after recompute: ok=%v got=%v", ok, got)
	}
}

// TestCopyOutReads verifies a returned slice does not alias the stored entry.
func TestCopyOutReads(t *testing.T) {
	ctx := context.Background()
	cc, err := New[[]todo](Options[[]todo]{
		Namespace: "pages",
		Codec:     c.JSON[[]todo]{},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cc.Close(ctx) })

	_ = cc.Set(ctx, "todos", []todo{{ID: 1, Title: "original"}}, time.Minute)

	first, _ := cc.Get(ctx, "todos")
	first[0].Title = "mutated by caller"

	second, _ := cc.Get(ctx, "todos")
	if second[0].Title != "original" {
		t.Fatalf("caller mutation leaked into the cache: %q", second[0].Title)
	}
}
