// Package prom implements sweepcache.Metrics on top of Prometheus.
// Metric names match the counters the cache has always exported:
// cache_hits_total, cache_misses_total{reason}, cache_sets_total,
// cache_invalidations_total, cache_sweep_removed_total, cache_size_items.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/sweepcache"
)

type Metrics struct {
	hits          prometheus.Counter
	misses        *prometheus.CounterVec
	sets          prometheus.Counter
	invalidations prometheus.Counter
	sweepRemoved  prometheus.Counter
	size          prometheus.Gauge
}

var _ sweepcache.Metrics = (*Metrics)(nil)

// New registers the cache metrics with reg. Pass a namespace-specific
// Registerer (e.g. prometheus.WrapRegistererWith) to run several caches in
// one process.
func New(reg prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		hits: f.NewCounter(prometheus.CounterOpts{
			Name:        "cache_hits_total",
			Help:        "Number of cache reads that returned a value.",
			ConstLabels: constLabels,
		}),
		misses: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "cache_misses_total",
			Help:        "Number of cache reads that returned nothing, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		sets: f.NewCounter(prometheus.CounterOpts{
			Name:        "cache_sets_total",
			Help:        "Number of cache writes.",
			ConstLabels: constLabels,
		}),
		invalidations: f.NewCounter(prometheus.CounterOpts{
			Name:        "cache_invalidations_total",
			Help:        "Number of explicit invalidations.",
			ConstLabels: constLabels,
		}),
		sweepRemoved: f.NewCounter(prometheus.CounterOpts{
			Name:        "cache_sweep_removed_total",
			Help:        "Entries removed by sweep passes.",
			ConstLabels: constLabels,
		}),
		size: f.NewGauge(prometheus.GaugeOpts{
			Name:        "cache_size_items",
			Help:        "Current number of entries in the store.",
			ConstLabels: constLabels,
		}),
	}
	// pre-register the known reasons so dashboards see zeros, not gaps
	for _, r := range []sweepcache.MissReason{
		sweepcache.MissNotFound,
		sweepcache.MissExpired,
		sweepcache.MissStale,
		sweepcache.MissDecode,
	} {
		m.misses.WithLabelValues(string(r))
	}
	return m
}

func (m *Metrics) Hit() { m.hits.Inc() }

func (m *Metrics) Miss(reason sweepcache.MissReason) {
	m.misses.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) Set() { m.sets.Inc() }

func (m *Metrics) Invalidation() { m.invalidations.Inc() }

func (m *Metrics) SweepRemoved(n int) {
	if n > 0 {
		m.sweepRemoved.Add(float64(n))
	}
}

func (m *Metrics) EntryCount(n int) { m.size.Set(float64(n)) }
