// Package async decouples metrics sinks from the cache's hot paths: events
// are queued and delivered by worker goroutines, and dropped when the queue
// is full rather than ever blocking a Get or Set.
//
// usage:
//
//	sink := async.New(prom.New(reg, nil), 1, 1000) // 1 worker; queue 1000 events
//	defer sink.Close()
//
//	cache, _ := sweepcache.New[User](sweepcache.Options[User]{
//	    Namespace: "users",
//	    Codec:     codec.JSON[User]{},
//	    Metrics:   sink,
//	})
package async

import (
	"sync"

	"github.com/unkn0wn-root/sweepcache"
)

type Metrics struct {
	inner sweepcache.Metrics
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ sweepcache.Metrics = (*Metrics)(nil)

func New(inner sweepcache.Metrics, workers, qlen int) *Metrics {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	m := &Metrics{inner: inner, q: make(chan func(), qlen)}
	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer m.wg.Done()
			for f := range m.q {
				f()
			}
		}()
	}
	return m
}

func (m *Metrics) Close() {
	m.once.Do(func() {
		close(m.q)
		m.wg.Wait()
	})
}

func (m *Metrics) try(f func()) {
	select {
	case m.q <- f:
	default: // drop
	}
}

func (m *Metrics) Hit() { m.try(func() { m.inner.Hit() }) }
func (m *Metrics) Set() { m.try(func() { m.inner.Set() }) }

func (m *Metrics) Miss(r sweepcache.MissReason) {
	m.try(func() { m.inner.Miss(r) })
}

func (m *Metrics) Invalidation() { m.try(func() { m.inner.Invalidation() }) }

func (m *Metrics) SweepRemoved(n int) { m.try(func() { m.inner.SweepRemoved(n) }) }

func (m *Metrics) EntryCount(n int) { m.try(func() { m.inner.EntryCount(n) }) }
