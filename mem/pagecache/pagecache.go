// Package pagecache implements the page-level back end of the allocator.
//
// Free spans are kept in buckets keyed by page count (1..MaxPages). A request
// for k pages is served from the k bucket, by splitting the first larger
// span, or by growing from the operating system MaxPages at a time. Spans
// handed back are merged with free neighbours before being re-bucketed.
//
// One mutex guards every bucket, the span record pool and page-map writes.
// Page-map reads (MapObjectToSpan) are lock-free.
package pagecache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshuapare/spanalloc/internal/logger"
	"github.com/joshuapare/spanalloc/internal/objpool"
	"github.com/joshuapare/spanalloc/internal/osmem"
	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/mem/pagemap"
	"github.com/joshuapare/spanalloc/mem/scavenge"
	"github.com/joshuapare/spanalloc/mem/span"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// Config configures a PageCache. The zero value uses the OS page source, the
// package logger and manual scavenging only.
type Config struct {
	Source types.PageSource
	Logger *slog.Logger

	// ScavengeThreshold is the number of free pages above which ReleaseSpan
	// scavenges automatically. Zero disables automatic scavenging.
	ScavengeThreshold int
}

// chunk is one MaxPages run mapped from the OS.
type chunk struct {
	addr   uintptr
	npages int
}

// PageCache is the shared page-granularity span allocator.
type PageCache struct {
	mu sync.Mutex

	// Free spans by page count. Index 0 is unused.
	lists [sizeclass.NumPages]span.List

	// Live spans mapped straight from the OS (over MaxPages pages).
	large span.List

	spanPool objpool.Pool[span.Span]
	pageMap  *pagemap.PageMap

	src     types.PageSource
	log     *slog.Logger
	tracker scavenge.Tracker

	chunks            []chunk
	freePages         int // pages sitting in lists
	scavengeThreshold int
	closed            bool

	stats counters
}

// counters are cumulative event counts, reported through Stats.
type counters struct {
	systemAllocs  int
	systemFrees   int
	granted       int
	returned      int
	splits        int
	merges        int
	scavenges     int
	releasedPages int
}

// New returns an empty page cache. No memory is mapped until the first span
// is requested.
func New(cfg Config) *PageCache {
	src := cfg.Source
	if src == nil {
		src = osmem.System()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.L
	}
	return &PageCache{
		pageMap:           pagemap.New(),
		src:               src,
		log:               log,
		scavengeThreshold: cfg.ScavengeThreshold,
	}
}

// Lock acquires the global page-cache lock. Callers hold it around NewSpan,
// ReleaseSpan, AllocLarge and FreeLarge.
func (p *PageCache) Lock() { p.mu.Lock() }

// Unlock releases the global page-cache lock.
func (p *PageCache) Unlock() { p.mu.Unlock() }

// NewSpan returns an in-use span of exactly k pages with every page
// registered in the page map. The lock must be held. k must be in
// [1, MaxPages].
//
// It panics with an error wrapping types.ErrOutOfMemory when the OS refuses
// to grow the heap.
func (p *PageCache) NewSpan(k int) *span.Span {
	if k <= 0 {
		panic(fmt.Errorf("%w: pagecache: span of %d pages", types.ErrZeroSize, k))
	}
	if k > sizeclass.MaxPages {
		panic(fmt.Errorf("%w: pagecache: span of %d pages > %d", types.ErrSizeTooLarge, k, sizeclass.MaxPages))
	}
	p.checkOpen()

	// A grow always leaves a MaxPages span behind, so the second pass finds
	// either the exact bucket or one to split.
	for range 2 {
		if s := p.popFree(k); s != nil {
			p.grant(s)
			return s
		}

		for n := k + 1; n < sizeclass.NumPages; n++ {
			big := p.popFree(n)
			if big == nil {
				continue
			}

			prefix := p.spanPool.New()
			prefix.PageID = big.PageID
			prefix.NPages = k
			prefix.Scavenged = big.Scavenged

			big.PageID += span.PageID(k)
			big.NPages -= k
			p.pushFree(big)

			p.stats.splits++
			p.grant(prefix)
			return prefix
		}

		p.grow()
	}
	panic("pagecache: no span after growing")
}

// grant marks s in use and registers every one of its pages.
func (p *PageCache) grant(s *span.Span) {
	s.InUse = true
	s.Scavenged = false
	p.pageMap.SetRange(s.PageID, s.NPages, s)
	p.stats.granted++
}

// grow maps MaxPages fresh pages and files them as one free span.
func (p *PageCache) grow() {
	addr, err := p.src.SystemAlloc(sizeclass.MaxPages)
	if err != nil {
		p.log.Error("pagecache: grow failed", "pages", sizeclass.MaxPages, "error", err)
		panic(fmt.Errorf("%w: pagecache: grow by %d pages: %w", types.ErrOutOfMemory, sizeclass.MaxPages, err))
	}
	p.stats.systemAllocs++
	p.chunks = append(p.chunks, chunk{addr: addr, npages: sizeclass.MaxPages})

	s := p.spanPool.New()
	s.PageID = span.PageOf(addr)
	s.NPages = sizeclass.MaxPages
	p.pushFree(s)

	p.log.Debug("pagecache: grow", "addr", fmt.Sprintf("%#x", addr), "pages", s.NPages, "chunks", len(p.chunks))
}

// pushFree files s in its bucket and registers its boundary pages.
func (p *PageCache) pushFree(s *span.Span) {
	s.InUse = false
	p.lists[s.NPages].PushFront(s)
	p.freePages += s.NPages
	p.pageMap.Set(s.PageID, s)
	p.pageMap.Set(s.LastPage(), s)
}

// popFree takes the first span of bucket n, or nil when it is empty.
func (p *PageCache) popFree(n int) *span.Span {
	s := p.lists[n].PopFront()
	if s != nil {
		p.freePages -= s.NPages
	}
	return s
}

// removeFree unlinks a free span found through the page map.
func (p *PageCache) removeFree(s *span.Span) {
	p.lists[s.NPages].Erase(s)
	p.freePages -= s.NPages
}

// MapObjectToSpan returns the span owning addr. It takes no lock.
//
// It panics with an error wrapping types.ErrUnknownAddress when addr is not
// inside a span the cache handed out.
func (p *PageCache) MapObjectToSpan(addr uintptr) *span.Span {
	s := p.SpanOf(addr)
	if s == nil {
		panic(fmt.Errorf("%w: %#x", types.ErrUnknownAddress, addr))
	}
	return s
}

// SpanOf is MapObjectToSpan without the panic: it returns nil for an
// address no span covers.
func (p *PageCache) SpanOf(addr uintptr) *span.Span {
	return p.pageMap.Get(span.PageOf(addr))
}

// mergeable reports whether the page-map entry n is a free span that can be
// absorbed into s, which it must directly precede or follow.
func mergeable(s, n *span.Span, before bool) bool {
	if n == nil || n.InUse || !n.Linked() {
		return false
	}
	if n.NPages+s.NPages > sizeclass.MaxPages {
		return false
	}
	if before {
		return n.PageID+span.PageID(n.NPages) == s.PageID
	}
	return s.PageID+span.PageID(s.NPages) == n.PageID
}

// ReleaseSpan takes back a span handed out by NewSpan, merges it with free
// neighbours and files the result. The lock must be held.
func (p *PageCache) ReleaseSpan(s *span.Span) {
	p.checkOpen()
	p.stats.returned++

	s.FreeList = 0
	s.UseCount = 0
	s.ObjSize = 0
	s.InUse = false

	for {
		prev := p.pageMap.Get(s.PageID - 1)
		if !mergeable(s, prev, true) {
			break
		}
		p.removeFree(prev)
		s.PageID = prev.PageID
		s.NPages += prev.NPages
		p.spanPool.Delete(prev)
		p.stats.merges++
	}

	for {
		next := p.pageMap.Get(s.PageID + span.PageID(s.NPages))
		if !mergeable(s, next, false) {
			break
		}
		p.removeFree(next)
		s.NPages += next.NPages
		p.spanPool.Delete(next)
		p.stats.merges++
	}

	p.pushFree(s)

	if p.scavengeThreshold > 0 && p.freePages > p.scavengeThreshold {
		if err := p.scavengeLocked(); err != nil {
			p.log.Warn("pagecache: automatic scavenge failed", "error", err)
		}
	}
}

// AllocLarge maps a span of npages (more than MaxPages) straight from the
// OS. Only its first page is registered. The lock must be held.
func (p *PageCache) AllocLarge(npages int) *span.Span {
	if npages <= sizeclass.MaxPages {
		panic(fmt.Sprintf("pagecache: AllocLarge of %d pages, use NewSpan", npages))
	}
	p.checkOpen()

	addr, err := p.src.SystemAlloc(npages)
	if err != nil {
		p.log.Error("pagecache: large allocation failed", "pages", npages, "error", err)
		panic(fmt.Errorf("%w: pagecache: map %d pages: %w", types.ErrOutOfMemory, npages, err))
	}
	p.stats.systemAllocs++

	s := p.spanPool.New()
	s.PageID = span.PageOf(addr)
	s.NPages = npages
	s.InUse = true
	p.large.PushBack(s)
	p.pageMap.Set(s.PageID, s)

	p.log.Debug("pagecache: large span", "addr", fmt.Sprintf("%#x", addr), "pages", npages)
	return s
}

// FreeLarge unmaps a span returned by AllocLarge and clears its page-map
// entry. The record must not be used afterwards. The lock must be held.
func (p *PageCache) FreeLarge(s *span.Span) error {
	p.large.Erase(s)
	p.pageMap.Set(s.PageID, nil)

	addr, npages := s.Start(), s.NPages
	p.spanPool.Delete(s)

	if err := p.src.SystemFree(addr, npages); err != nil {
		return fmt.Errorf("pagecache: free large span: %w", err)
	}
	p.stats.systemFrees++
	return nil
}

// Scavenge hands the pages of every free span back to the OS. The spans stay
// in their buckets and are reused normally; the OS supplies zero pages on
// next touch.
func (p *PageCache) Scavenge() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkOpen()
	return p.scavengeLocked()
}

func (p *PageCache) scavengeLocked() error {
	var marked []*span.Span
	for n := 1; n < sizeclass.NumPages; n++ {
		for s := p.lists[n].Front(); s != nil; s = s.Next() {
			if s.Scavenged {
				continue
			}
			p.tracker.Add(s.PageID, s.NPages)
			marked = append(marked, s)
		}
	}
	if len(marked) == 0 {
		return nil
	}

	bounds := make([]scavenge.Range, len(p.chunks))
	for i, c := range p.chunks {
		bounds[i] = scavenge.Range{Page: span.PageOf(c.addr), NPages: c.npages}
	}
	released, err := p.tracker.Flush(p.src, bounds...)
	p.stats.scavenges++
	p.stats.releasedPages += released
	if err != nil {
		p.tracker.Reset()
		return err
	}
	for _, s := range marked {
		s.Scavenged = true
	}

	p.log.Info("pagecache: scavenged", "spans", len(marked), "pages", released)
	return nil
}

// Close unmaps every chunk and every live large span. Blocks still held by
// callers become invalid. Further use of the cache panics.
func (p *PageCache) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for s := p.large.PopFront(); s != nil; s = p.large.PopFront() {
		if err := p.src.SystemFree(s.Start(), s.NPages); err != nil {
			errs = append(errs, err)
			continue
		}
		p.stats.systemFrees++
	}
	for _, c := range p.chunks {
		if err := p.src.SystemFree(c.addr, c.npages); err != nil {
			errs = append(errs, err)
			continue
		}
		p.stats.systemFrees++
	}

	p.log.Debug("pagecache: closed", "chunks", len(p.chunks), "system_frees", p.stats.systemFrees)
	p.chunks = nil
	return errors.Join(errs...)
}

func (p *PageCache) checkOpen() {
	if p.closed {
		panic(fmt.Errorf("%w: pagecache", types.ErrClosed))
	}
}

// Stats returns a snapshot of the cache.
func (p *PageCache) Stats() types.PageCacheStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := types.PageCacheStats{
		FreePages:     p.freePages,
		Chunks:        len(p.chunks),
		SystemAllocs:  p.stats.systemAllocs,
		SystemFrees:   p.stats.systemFrees,
		SpansGranted:  p.stats.granted,
		SpansReturned: p.stats.returned,
		Splits:        p.stats.splits,
		Merges:        p.stats.merges,
		LargeSpans:    p.large.Len(),
		Scavenges:     p.stats.scavenges,
		ReleasedPages: p.stats.releasedPages,
		SpanRecords:   p.spanPool.InUse(),
		PageMapNodes:  p.pageMap.Nodes(),
	}
	for n := 1; n < sizeclass.NumPages; n++ {
		if l := p.lists[n].Len(); l > 0 {
			st.Buckets = append(st.Buckets, types.PageBucket{Pages: n, Spans: l})
		}
	}
	return st
}
