// Package scheduler drives a set of file transfers with size-tiered
// parallelism: many tiny files at once, large files one at a time.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"coldstash/internal/record"
	"coldstash/internal/transfer"
)

// Tier buckets files by size. Tiers run strictly in declaration order;
// a tier starts only after the previous one has fully drained.
type Tier int

const (
	TierVerySmall Tier = iota
	TierSmall
	TierMedium
	TierLarge
)

const (
	verySmallMax = 512 * 1024
	smallMax     = 2 * transfer.PartSize
	mediumMax    = 4 * transfer.PartSize
)

func (t Tier) String() string {
	switch t {
	case TierVerySmall:
		return "very-small"
	case TierSmall:
		return "small"
	case TierMedium:
		return "medium"
	default:
		return "large"
	}
}

func tierOf(size int64) Tier {
	switch {
	case size <= verySmallMax:
		return TierVerySmall
	case size <= smallMax:
		return TierSmall
	case size <= mediumMax:
		return TierMedium
	default:
		return TierLarge
	}
}

// Limits is the per-tier concurrency bound.
type Limits struct {
	VerySmall int
	Small     int
	Medium    int
	Large     int
}

// DefaultLimits derives the tier bounds from the host's logical core
// count. Tiny files are cheap to parallelize; large multipart files
// already parallelize internally, so they run serially.
func DefaultLimits(cores int) Limits {
	verySmall := 20
	if cores < 4 {
		verySmall = 10
	}
	small := cores - 1
	if small < 1 {
		small = 1
	}
	return Limits{VerySmall: verySmall, Small: small, Medium: 2, Large: 1}
}

func (l Limits) forTier(t Tier) int {
	switch t {
	case TierVerySmall:
		return l.VerySmall
	case TierSmall:
		return l.Small
	case TierMedium:
		return l.Medium
	default:
		return l.Large
	}
}

// RunFunc transfers one entry completely, updating its progress as
// bytes move.
type RunFunc func(ctx context.Context, e *record.FileEntry) error

// Scheduler uploads one archive's pending entries tier by tier.
type Scheduler struct {
	limits Limits

	// onTaskDone fires after every task finishes, success or not. The
	// caller recomputes and publishes aggregate progress there, under
	// its own synchronization.
	onTaskDone func()
}

func New(limits Limits, onTaskDone func()) *Scheduler {
	return &Scheduler{limits: limits, onTaskDone: onTaskDone}
}

// Run transfers every entry, or stops at the first fault. Within a
// tier a sliding window of at most the tier's limit runs concurrently;
// when a task faults no further tasks start, in-flight ones observe
// ctx and unwind, and the fault is returned. Cancellation is
// propagated as ctx's error.
func (s *Scheduler) Run(ctx context.Context, entries []*record.FileEntry, run RunFunc) error {
	tiers := partition(entries)

	for t := TierVerySmall; t <= TierLarge; t++ {
		queue := tiers[t]
		if len(queue) == 0 {
			continue
		}
		slog.Debug("Running tier", "tier", t.String(), "files", len(queue), "limit", s.limits.forTier(t))
		if err := s.runTier(ctx, t, queue, run); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *Scheduler) runTier(ctx context.Context, t Tier, entries []*record.FileEntry, run RunFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan *record.FileEntry, len(entries))
	for _, e := range entries {
		queue <- e
	}
	close(queue)

	workers := s.limits.forTier(t)
	if workers > len(entries) {
		workers = len(entries)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range queue {
				if ctx.Err() != nil {
					return
				}
				err := run(ctx, e)
				if s.onTaskDone != nil {
					s.onTaskDone()
				}
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
					return
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// partition splits entries into tiers, preserving input order within
// each tier.
func partition(entries []*record.FileEntry) [4][]*record.FileEntry {
	var tiers [4][]*record.FileEntry
	for _, e := range entries {
		tiers[tierOf(e.Size)] = append(tiers[tierOf(e.Size)], e)
	}
	return tiers
}
