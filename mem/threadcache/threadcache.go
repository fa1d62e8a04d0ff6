// Package threadcache implements the lock-free front end of the allocator: a
// per-goroutine set of free lists, one per size class.
//
// A ThreadCache is owned by exactly one goroutine at a time and takes no
// locks of its own. Misses refill from the central cache in batches that
// grow slowly with demand; long lists are trimmed back in batches of the
// same size.
package threadcache

import (
	"fmt"

	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/mem/central"
	"github.com/joshuapare/spanalloc/mem/span"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// ThreadCache is a per-goroutine block cache. NOT thread-safe.
type ThreadCache struct {
	lists   [sizeclass.NumClasses]FreeList
	central *central.Cache
	closed  bool

	fetches  int
	releases int
}

// New returns an empty thread cache refilling from c.
func New(c *central.Cache) *ThreadCache {
	tc := &ThreadCache{central: c}
	for i := range tc.lists {
		tc.lists[i].MaxBatch = 1
	}
	return tc
}

// Allocate returns a block of at least size bytes (1..MaxBytes).
//
// It panics with an error wrapping types.ErrSizeTooLarge above MaxBytes and
// types.ErrZeroSize for zero.
func (tc *ThreadCache) Allocate(size int) uintptr {
	tc.checkOpen()
	if size > sizeclass.MaxBytes {
		panic(fmt.Errorf("%w: threadcache: %d > %d", types.ErrSizeTooLarge, size, sizeclass.MaxBytes))
	}
	idx := sizeclass.Index(size)

	if blk := tc.lists[idx].Pop(); blk != 0 {
		return blk
	}
	return tc.fetchFromCentral(idx, sizeclass.Size(idx))
}

// Deallocate returns a block previously obtained from Allocate with the same
// size. When the class list reaches MaxBatch blocks, exactly MaxBatch are
// handed back to the central cache.
func (tc *ThreadCache) Deallocate(blk uintptr, size int) {
	tc.checkOpen()
	if blk == 0 {
		panic(fmt.Errorf("%w: threadcache", types.ErrNilPointer))
	}
	idx := sizeclass.Index(size)
	l := &tc.lists[idx]

	l.Push(blk)
	if l.Len() >= l.MaxBatch {
		tc.listTooLong(l, sizeclass.Size(idx))
	}
}

// fetchFromCentral refills the class list and returns one block.
func (tc *ThreadCache) fetchFromCentral(idx, size int) uintptr {
	l := &tc.lists[idx]

	limit := sizeclass.NumMoveSize(size)
	batch := min(l.MaxBatch, limit)
	if l.MaxBatch < limit {
		l.MaxBatch++
	}

	start, end, n := tc.central.FetchRangeObj(batch, size)
	tc.fetches++

	if n > 1 {
		l.PushRange(span.NextBlock(start), end, n-1)
	}
	return start
}

// listTooLong hands MaxBatch blocks of l back to the central cache.
func (tc *ThreadCache) listTooLong(l *FreeList, size int) {
	start, _ := l.PopRange(l.MaxBatch)
	tc.central.ReleaseListToSpans(start, size)
	tc.releases++
}

// Flush hands every cached block back to the central cache. Slow-start
// limits are kept.
func (tc *ThreadCache) Flush() {
	tc.checkOpen()
	for idx := range tc.lists {
		l := &tc.lists[idx]
		if l.Empty() {
			continue
		}
		start, _ := l.PopRange(l.Len())
		tc.central.ReleaseListToSpans(start, sizeclass.Size(idx))
		tc.releases++
	}
}

// Close flushes the cache and detaches it. Any further use panics with an
// error wrapping types.ErrClosed. Closing twice is a no-op.
func (tc *ThreadCache) Close() {
	if tc.closed {
		return
	}
	tc.Flush()
	tc.closed = true
}

func (tc *ThreadCache) checkOpen() {
	if tc.closed {
		panic(fmt.Errorf("%w: threadcache", types.ErrClosed))
	}
}

// Stats returns a snapshot of the non-empty lists.
func (tc *ThreadCache) Stats() types.ThreadCacheStats {
	st := types.ThreadCacheStats{Fetches: tc.fetches, Releases: tc.releases}
	for idx := range tc.lists {
		l := &tc.lists[idx]
		if l.Empty() && l.MaxBatch <= 1 {
			continue
		}
		st.Buckets = append(st.Buckets, types.ThreadBucket{
			Class:    idx,
			Size:     sizeclass.Size(idx),
			Len:      l.Len(),
			MaxBatch: l.MaxBatch,
		})
	}
	return st
}
