// Package objpool provides a fixed-size object pool that carves values out of
// large chunks and recycles freed values through a free stack.
//
// The allocator uses it for span records and page-map nodes so that its own
// metadata never re-enters the allocator it implements.
package objpool

import "unsafe"

// chunkBytes is the size of each backing chunk requested from the Go heap.
const chunkBytes = 128 << 10

// Pool hands out *T values carved from chunks of chunkBytes. Values returned
// by New are zeroed.
//
// NOT thread-safe. Owners serialize access with their own lock.
type Pool[T any] struct {
	chunks [][]T // keeps every chunk reachable
	cur    []T   // unused tail of the newest chunk
	free   []*T  // values returned by Delete
	inUse  int
}

// New returns a zeroed *T, reusing a freed value when one is available.
func (p *Pool[T]) New() *T {
	p.inUse++
	if n := len(p.free); n > 0 {
		obj := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		var zero T
		*obj = zero
		return obj
	}

	if len(p.cur) == 0 {
		p.cur = make([]T, perChunk[T]())
		p.chunks = append(p.chunks, p.cur)
	}
	obj := &p.cur[0]
	p.cur = p.cur[1:]
	return obj
}

// Delete returns obj to the pool. obj must have come from New on the same
// pool and must not be used afterwards.
func (p *Pool[T]) Delete(obj *T) {
	if obj == nil {
		return
	}
	p.inUse--
	p.free = append(p.free, obj)
}

// InUse returns the number of values handed out and not yet deleted.
func (p *Pool[T]) InUse() int { return p.inUse }

// Chunks returns the number of backing chunks allocated so far.
func (p *Pool[T]) Chunks() int { return len(p.chunks) }

// perChunk is the number of T values that fit in one chunk (at least one).
func perChunk[T any]() int {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return 1
	}
	n := chunkBytes / size
	if n < 1 {
		n = 1
	}
	return n
}
