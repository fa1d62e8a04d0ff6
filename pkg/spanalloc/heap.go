package spanalloc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshuapare/spanalloc/internal/logger"
	"github.com/joshuapare/spanalloc/internal/osmem"
	"github.com/joshuapare/spanalloc/mem/central"
	"github.com/joshuapare/spanalloc/mem/pagecache"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// Heap owns the shared tiers: the central cache and the page cache. It is
// safe for concurrent use.
type Heap struct {
	pages   *pagecache.PageCache
	central *central.Cache
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a heap. A nil opts uses DefaultOptions. No memory is mapped
// until the first allocation.
func New(opts *Options) (*Heap, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.ScavengeThreshold < 0 {
		return nil, fmt.Errorf("spanalloc: negative scavenge threshold %d", opts.ScavengeThreshold)
	}

	src := opts.Source
	if src == nil {
		src = osmem.System()
	}
	log := opts.Logger
	if log == nil {
		log = logger.L
	}

	pages := pagecache.New(pagecache.Config{
		Source:            src,
		Logger:            log,
		ScavengeThreshold: opts.ScavengeThreshold,
	})
	h := &Heap{
		pages:   pages,
		central: central.New(pages),
		log:     log,
	}
	log.Debug("spanalloc: heap created", "scavenge_threshold", opts.ScavengeThreshold)
	return h, nil
}

// NewCache returns a cache for the calling goroutine. It panics with an
// error wrapping ErrClosed if the heap is closed.
func (h *Heap) NewCache() *Cache {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		panic(fmt.Errorf("%w: spanalloc: heap", types.ErrClosed))
	}
	return newCache(h)
}

// Scavenge returns the pages of every free span to the OS. They stay
// reserved and are reused on demand.
func (h *Heap) Scavenge() error {
	return h.pages.Scavenge()
}

// Stats returns a snapshot of the shared tiers.
func (h *Heap) Stats() types.HeapStats {
	return types.HeapStats{
		Page:    h.pages.Stats(),
		Central: h.central.Stats(),
	}
}

// Close unmaps all memory owned by the heap. Blocks still held by callers
// become invalid and every cache of the heap must no longer be used.
// Closing twice is a no-op.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	st := h.pages.Stats()
	if err := h.pages.Close(); err != nil {
		h.log.Error("spanalloc: close failed", "error", err)
		return fmt.Errorf("spanalloc: close: %w", err)
	}
	h.log.Info("spanalloc: heap closed",
		"chunks", st.Chunks,
		"large_spans", st.LargeSpans,
		"system_allocs", st.SystemAllocs,
	)
	return nil
}
