package spanalloc

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/mem/span"
	"github.com/joshuapare/spanalloc/mem/threadcache"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// Cache is a per-goroutine allocation handle. NOT thread-safe: each
// goroutine needs its own, obtained from Heap.NewCache.
type Cache struct {
	heap   *Heap
	tc     *threadcache.ThreadCache
	closed bool
}

func newCache(h *Heap) *Cache {
	return &Cache{heap: h, tc: threadcache.New(h.central)}
}

// Allocate returns a block of at least size bytes. The contents are
// undefined.
//
// It panics with an error wrapping ErrZeroSize when size is not positive,
// ErrOutOfMemory when the OS refuses pages, and ErrClosed after Close.
func (c *Cache) Allocate(size int) unsafe.Pointer {
	c.checkOpen()
	if size <= 0 {
		panic(fmt.Errorf("%w: spanalloc: got %d", types.ErrZeroSize, size))
	}
	if size > sizeclass.MaxBytes {
		return c.allocOversize(size)
	}
	return unsafe.Pointer(c.tc.Allocate(size))
}

// allocOversize serves a request above MaxBytes with a span of its own.
func (c *Cache) allocOversize(size int) unsafe.Pointer {
	npages := sizeclass.PagesFor(size)
	pages := c.heap.pages

	pages.Lock()
	defer pages.Unlock()

	var s *span.Span
	if npages > sizeclass.MaxPages {
		s = pages.AllocLarge(npages)
	} else {
		s = pages.NewSpan(npages)
	}
	s.ObjSize = size
	return unsafe.Pointer(s.Start())
}

// Free returns a block obtained from Allocate on any cache of the same heap.
//
// It panics with an error wrapping ErrNilPointer for nil and
// ErrUnknownAddress for an address that is not the start of a live block.
func (c *Cache) Free(p unsafe.Pointer) {
	c.checkOpen()
	if p == nil {
		panic(fmt.Errorf("%w: spanalloc", types.ErrNilPointer))
	}
	addr := uintptr(p)
	s := c.owner(addr)

	if s.ObjSize > sizeclass.MaxBytes {
		c.freeOversize(s)
		return
	}
	c.tc.Deallocate(addr, s.ObjSize)
}

func (c *Cache) freeOversize(s *span.Span) {
	pages := c.heap.pages
	pages.Lock()
	defer pages.Unlock()

	if s.NPages > sizeclass.MaxPages {
		if err := pages.FreeLarge(s); err != nil {
			panic(fmt.Errorf("spanalloc: %w", err))
		}
		return
	}
	pages.ReleaseSpan(s)
}

// owner resolves the span holding the block at addr and checks that addr is
// the start of one of its blocks.
func (c *Cache) owner(addr uintptr) *span.Span {
	s := c.heap.pages.SpanOf(addr)
	if s == nil || !s.InUse || s.ObjSize == 0 {
		panic(fmt.Errorf("%w: %#x", types.ErrUnknownAddress, addr))
	}
	// Pages absorbed by a merge keep their old page-map entries, which may
	// now name a recycled record covering other pages.
	if addr < s.Start() || addr >= s.End() {
		panic(fmt.Errorf("%w: %#x is outside span %v", types.ErrUnknownAddress, addr, s))
	}
	off := addr - s.Start()
	if s.ObjSize > sizeclass.MaxBytes {
		if off != 0 {
			panic(fmt.Errorf("%w: %#x is inside a %d-byte block", types.ErrUnknownAddress, addr, s.ObjSize))
		}
		return s
	}
	if off%uintptr(s.ObjSize) != 0 {
		panic(fmt.Errorf("%w: %#x is inside a %d-byte block", types.ErrUnknownAddress, addr, s.ObjSize))
	}
	return s
}

// UsableSize returns the number of bytes usable at p, which is at least the
// size passed to Allocate.
func (c *Cache) UsableSize(p unsafe.Pointer) int {
	if p == nil {
		panic(fmt.Errorf("%w: spanalloc", types.ErrNilPointer))
	}
	s := c.owner(uintptr(p))
	if s.ObjSize > sizeclass.MaxBytes {
		return s.Bytes()
	}
	return s.ObjSize
}

// AllocateBytes returns a size-byte slice backed by a new block. Its
// contents are undefined. Release it with FreeBytes.
func (c *Cache) AllocateBytes(size int) []byte {
	return unsafe.Slice((*byte)(c.Allocate(size)), size)
}

// FreeBytes releases a slice returned by AllocateBytes. b must start at the
// beginning of the block.
func (c *Cache) FreeBytes(b []byte) {
	if cap(b) == 0 {
		panic(fmt.Errorf("%w: spanalloc: empty slice", types.ErrNilPointer))
	}
	c.Free(unsafe.Pointer(unsafe.SliceData(b)))
}

// Close hands every cached block back to the heap. Further use of c panics
// with an error wrapping ErrClosed. Closing twice is a no-op.
func (c *Cache) Close() {
	if c.closed {
		return
	}
	c.tc.Close()
	c.closed = true
}

// Stats returns a snapshot of the cache's free lists.
func (c *Cache) Stats() types.ThreadCacheStats {
	return c.tc.Stats()
}

func (c *Cache) checkOpen() {
	if c.closed {
		panic(fmt.Errorf("%w: spanalloc: cache", types.ErrClosed))
	}
}
