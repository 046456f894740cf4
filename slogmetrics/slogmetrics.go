// Package slogmetrics is a sampled slog-backed sweepcache.Metrics sink for
// environments without a metrics collector. Hot events (hits, misses, sets)
// are sampled to avoid log floods; rare events are always logged.
package slogmetrics

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/sweepcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery  uint64
	MissEvery uint64
	SetEvery  uint64
}

type Metrics struct {
	l    *slog.Logger
	opts Options

	hitCtr  atomic.Uint64
	missCtr atomic.Uint64
	setCtr  atomic.Uint64
}

var _ sweepcache.Metrics = (*Metrics)(nil)

func New(l *slog.Logger, opts Options) *Metrics {
	return &Metrics{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (m *Metrics) Hit() {
	if m.l == nil || !sample(m.opts.HitEvery, &m.hitCtr) {
		return
	}
	m.l.Debug("sweepcache.hit")
}

func (m *Metrics) Miss(reason sweepcache.MissReason) {
	if m.l == nil || !sample(m.opts.MissEvery, &m.missCtr) {
		return
	}
	m.l.Debug("sweepcache.miss", "reason", string(reason))
}

func (m *Metrics) Set() {
	if m.l == nil || !sample(m.opts.SetEvery, &m.setCtr) {
		return
	}
	m.l.Debug("sweepcache.set")
}

func (m *Metrics) Invalidation() {
	if m.l == nil {
		return
	}
	m.l.Info("sweepcache.invalidation")
}

func (m *Metrics) SweepRemoved(n int) {
	if m.l == nil || n == 0 {
		return
	}
	m.l.Info("sweepcache.sweep_removed", "count", n)
}

func (m *Metrics) EntryCount(n int) {
	if m.l == nil {
		return
	}
	m.l.Debug("sweepcache.entry_count", "count", n)
}
