// Package central implements the shared span cache that sits between the
// per-goroutine thread caches and the page cache.
//
// Each size class owns a span list with its own lock. Thread caches take
// blocks from the class's spans in batches and return them in batches; spans
// whose blocks have all come home are handed back to the page cache.
//
// Lock order is bucket then page. Neither path holds a bucket lock while it
// waits for the page lock.
package central

import (
	"fmt"

	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/mem/pagecache"
	"github.com/joshuapare/spanalloc/mem/span"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// bucket is the span list of one size class plus counters guarded by the
// list's lock.
type bucket struct {
	span.List

	fetched  int // spans pulled from the page cache
	released int // spans handed back
}

// Cache is the central span cache. Use New to create one.
type Cache struct {
	buckets [sizeclass.NumClasses]bucket
	pages   *pagecache.PageCache
}

// New returns an empty central cache drawing spans from pages.
func New(pages *pagecache.PageCache) *Cache {
	return &Cache{pages: pages}
}

// Pages returns the page cache backing c.
func (c *Cache) Pages() *pagecache.PageCache { return c.pages }

// FetchRangeObj takes up to batch blocks of the class serving size and
// returns them as a chain from start to end (end's next word is 0). n is the
// number of blocks actually taken: at least one and possibly fewer than
// batch when the chosen span runs short.
func (c *Cache) FetchRangeObj(batch, size int) (start, end uintptr, n int) {
	if batch <= 0 {
		panic(fmt.Sprintf("central: batch of %d blocks", batch))
	}
	idx := sizeclass.Index(size)
	b := &c.buckets[idx]

	b.Lock()
	s := c.getOneSpan(b, sizeclass.Size(idx))

	start = s.FreeList
	end = start
	n = 1
	for n < batch {
		next := span.NextBlock(end)
		if next == 0 {
			break
		}
		end = next
		n++
	}
	s.FreeList = span.NextBlock(end)
	span.SetNextBlock(end, 0)
	s.UseCount += n
	b.Unlock()
	return start, end, n
}

// getOneSpan returns a span of the bucket with at least one free block,
// fetching and slicing a fresh one from the page cache when none is left.
// The bucket lock is held on entry and on return but released while the page
// cache is consulted. If the page cache panics the bucket lock is not
// re-acquired.
func (c *Cache) getOneSpan(b *bucket, size int) *span.Span {
	for s := b.Front(); s != nil; s = s.Next() {
		if s.FreeList != 0 {
			return s
		}
	}

	b.Unlock()
	s := c.fetchSpan(size)

	// Not yet visible to other goroutines, so no lock is needed.
	s.Slice(size)

	b.Lock()
	b.PushFront(s)
	b.fetched++
	return s
}

// fetchSpan takes a span for blocks of size from the page cache.
func (c *Cache) fetchSpan(size int) *span.Span {
	c.pages.Lock()
	defer c.pages.Unlock()

	s := c.pages.NewSpan(sizeclass.NumMovePage(size))
	s.ObjSize = size
	return s
}

// ReleaseListToSpans returns a 0-terminated chain of blocks of the class
// serving size to the spans they were carved from. Spans left with no blocks
// lent out are handed back to the page cache.
func (c *Cache) ReleaseListToSpans(start uintptr, size int) {
	idx := sizeclass.Index(size)
	b := &c.buckets[idx]

	var empty []*span.Span

	b.Lock()
	for blk := start; blk != 0; {
		next := span.NextBlock(blk)

		s := c.pages.SpanOf(blk)
		if s == nil || s.ObjSize != sizeclass.Size(idx) || blk < s.Start() || blk >= s.End() {
			b.Unlock()
			panic(fmt.Errorf("%w: block %#x is not a class %d block (%v)",
				types.ErrUnknownAddress, blk, idx, s))
		}
		span.SetNextBlock(blk, s.FreeList)
		s.FreeList = blk
		s.UseCount--

		if s.UseCount == 0 {
			b.Erase(s)
			b.released++
			empty = append(empty, s)
		}
		blk = next
	}
	b.Unlock()

	if len(empty) == 0 {
		return
	}

	c.pages.Lock()
	defer c.pages.Unlock()
	for _, s := range empty {
		c.pages.ReleaseSpan(s)
	}
}

// Stats returns a snapshot of every non-empty class. Buckets are locked one
// at a time, so the snapshot is not atomic across classes.
func (c *Cache) Stats() types.CentralStats {
	var st types.CentralStats
	for idx := range c.buckets {
		b := &c.buckets[idx]

		b.Lock()
		st.SpansFetched += b.fetched
		st.SpansReleased += b.released
		if b.Empty() {
			b.Unlock()
			continue
		}

		cb := types.ClassBucket{Class: idx, Size: sizeclass.Size(idx), Spans: b.Len()}
		for s := b.Front(); s != nil; s = s.Next() {
			cb.Lent += s.UseCount
			for blk := s.FreeList; blk != 0; blk = span.NextBlock(blk) {
				cb.Free++
			}
		}
		b.Unlock()

		st.Buckets = append(st.Buckets, cb)
	}
	return st
}
