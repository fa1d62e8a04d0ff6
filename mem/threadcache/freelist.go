package threadcache

import "github.com/joshuapare/spanalloc/mem/span"

// FreeList is a singly linked chain of free blocks of one size class, linked
// through the first word of each block.
//
// MaxBatch is the slow-start limit: it starts at 1, grows by one each time a
// refill was capped by it, and is also the hand-back threshold.
type FreeList struct {
	head     uintptr
	n        int
	MaxBatch int
}

// Push adds one block to the front of the list.
func (l *FreeList) Push(blk uintptr) {
	span.SetNextBlock(blk, l.head)
	l.head = blk
	l.n++
}

// Pop removes and returns the first block, or 0 when the list is empty.
func (l *FreeList) Pop() uintptr {
	blk := l.head
	if blk == 0 {
		return 0
	}
	l.head = span.NextBlock(blk)
	l.n--
	return blk
}

// PushRange prepends the chain start..end holding n blocks.
func (l *FreeList) PushRange(start, end uintptr, n int) {
	span.SetNextBlock(end, l.head)
	l.head = start
	l.n += n
}

// PopRange detaches the first n blocks and returns them as a 0-terminated
// chain. n must not exceed Len.
func (l *FreeList) PopRange(n int) (start, end uintptr) {
	if n <= 0 || n > l.n {
		panic("threadcache: PopRange beyond list length")
	}
	start = l.head
	end = start
	for range n - 1 {
		end = span.NextBlock(end)
	}
	l.head = span.NextBlock(end)
	span.SetNextBlock(end, 0)
	l.n -= n
	return start, end
}

// Len returns the number of blocks on the list.
func (l *FreeList) Len() int { return l.n }

// Empty reports whether the list holds no blocks.
func (l *FreeList) Empty() bool { return l.head == 0 }
