// Package warmup pre-loads hot keys into caches at startup, cutting cold-start
// latency for the first requests. Tasks run in parallel; one task failing
// never stops the others, since a cold cache is a latency problem, not a
// correctness problem.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/sweepcache"
)

// DefaultRefreshInterval is how often RunEvery re-runs its tasks when the
// caller passes interval <= 0.
const DefaultRefreshInterval = 5 * time.Minute

// Task fills one cache (or one key). Fill typically closes over a typed
// cache and its source of truth:
//
//	warmup.Task{Name: "todos", Fill: func(ctx context.Context) error {
//	    todos, err := loadTodos(ctx, db)
//	    if err != nil {
//	        return err
//	    }
//	    return todoCache.Set(ctx, "todos", todos, 15*time.Minute)
//	}}
type Task struct {
	Name string
	Fill func(ctx context.Context) error
}

// Run executes all tasks concurrently and waits for them to finish. Per-task
// failures are logged and joined into the returned error; callers may ignore
// it and serve traffic with whatever warmed up.
func Run(ctx context.Context, log sweepcache.Logger, tasks ...Task) error {
	if log == nil {
		log = sweepcache.NopLogger{}
	}
	if len(tasks) == 0 {
		return nil
	}

	var failed atomic.Int64
	errCh := make(chan error, len(tasks))

	var g errgroup.Group
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			if err := t.Fill(ctx); err != nil {
				failed.Add(1)
				log.Warn("warmup task failed", sweepcache.Fields{"task": t.Name, "err": err})
				errCh <- fmt.Errorf("warmup %q: %w", t.Name, err)
			}
			// never cancel sibling tasks
			return nil
		})
	}
	_ = g.Wait()
	close(errCh)

	nf := int(failed.Load())
	log.Info("warmup finished", sweepcache.Fields{
		"succeeded": len(tasks) - nf,
		"failed":    nf,
	})

	errs := make([]error, 0, nf)
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RunEvery re-runs all tasks on a fixed interval, keeping hot keys fresh so
// readers rarely pay the recompute cost. interval <= 0 falls back to
// DefaultRefreshInterval. Failures are logged and the loop keeps going; a
// missed refresh just means the next reader recomputes.
//
// RunEvery blocks until ctx is cancelled; start it on its own goroutine
// after the initial Run:
//
//	_ = warmup.Run(ctx, log, tasks...)
//	go warmup.RunEvery(ctx, 5*time.Minute, log, tasks...)
func RunEvery(ctx context.Context, interval time.Duration, log sweepcache.Logger, tasks ...Task) {
	if log == nil {
		log = sweepcache.NopLogger{}
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	log.Info("cache refresh loop started", sweepcache.Fields{"interval": interval})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("cache refresh loop stopped", sweepcache.Fields{"reason": ctx.Err()})
			return
		case <-ticker.C:
			if err := Run(ctx, log, tasks...); err != nil {
				log.Warn("cache refresh had failures", sweepcache.Fields{"err": err})
			}
		}
	}
}
