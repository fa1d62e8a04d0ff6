package main

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/joshuapare/spanalloc/internal/logger"
	"github.com/joshuapare/spanalloc/pkg/spanalloc"
)

// WorkloadOptions shapes the background allocation traffic.
type WorkloadOptions struct {
	Workers    int // goroutines, each with its own cache
	MaxSize    int // largest small request in bytes
	MaxLive    int // blocks a worker holds before it only frees
	LargeEvery int // every Nth request is oversize; 0 disables
	Seed       int64
}

// DefaultWorkloadOptions returns the workload used when no flags are given.
func DefaultWorkloadOptions() WorkloadOptions {
	return WorkloadOptions{
		Workers:    4,
		MaxSize:    4096,
		MaxLive:    2048,
		LargeEvery: 500,
		Seed:       1,
	}
}

// Workload drives random allocate/free traffic against a heap so its tiers
// have something to show. Workers park while paused.
type Workload struct {
	heap *spanalloc.Heap
	opts WorkloadOptions

	paused atomic.Bool
	stop   chan struct{}
	wg     sync.WaitGroup

	allocs atomic.Int64
	frees  atomic.Int64
	live   atomic.Int64
}

// NewWorkload creates a stopped workload.
func NewWorkload(heap *spanalloc.Heap, opts WorkloadOptions) *Workload {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxSize < 1 {
		opts.MaxSize = 1
	}
	if opts.MaxLive < 1 {
		opts.MaxLive = 1
	}
	return &Workload{heap: heap, opts: opts, stop: make(chan struct{})}
}

// Start launches the workers.
func (w *Workload) Start() {
	logger.L.Info("workload starting", "workers", w.opts.Workers, "max_size", w.opts.MaxSize)
	for i := range w.opts.Workers {
		w.wg.Add(1)
		go w.run(i)
	}
}

// Stop signals the workers, waits for them to free every block and close
// their caches.
func (w *Workload) Stop() {
	select {
	case <-w.stop:
		return
	default:
	}
	close(w.stop)
	w.wg.Wait()
	logger.L.Info("workload stopped", "allocs", w.allocs.Load(), "frees", w.frees.Load())
}

// SetPaused parks or resumes the workers.
func (w *Workload) SetPaused(p bool) { w.paused.Store(p) }

// Paused reports whether the workers are parked.
func (w *Workload) Paused() bool { return w.paused.Load() }

// Counters returns the allocations, frees and live blocks so far.
func (w *Workload) Counters() (allocs, frees, live int64) {
	return w.allocs.Load(), w.frees.Load(), w.live.Load()
}

func (w *Workload) run(id int) {
	defer w.wg.Done()
	c := w.heap.NewCache()
	defer c.Close()

	rng := rand.New(rand.NewSource(w.opts.Seed + int64(id)))
	var live []unsafe.Pointer
	defer func() {
		for _, p := range live {
			c.Free(p)
		}
		w.frees.Add(int64(len(live)))
		w.live.Add(-int64(len(live)))
	}()

	for n := 0; ; n++ {
		select {
		case <-w.stop:
			return
		default:
		}
		if w.paused.Load() {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		if len(live) >= w.opts.MaxLive || (len(live) > 0 && rng.Intn(2) == 0) {
			j := rng.Intn(len(live))
			c.Free(live[j])
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			w.frees.Add(1)
			w.live.Add(-1)
			continue
		}

		size := 1 + rng.Intn(w.opts.MaxSize)
		if w.opts.LargeEvery > 0 && n%w.opts.LargeEvery == w.opts.LargeEvery-1 {
			size = spanalloc.MaxBytes + 1 + rng.Intn(spanalloc.MaxBytes)
		}
		live = append(live, c.Allocate(size))
		w.allocs.Add(1)
		w.live.Add(1)
	}
}
