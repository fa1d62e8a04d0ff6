// Package span defines the span record shared by the central and page caches,
// the sentinel-headed span list each bucket keeps, and the helpers that thread
// free-block chains through raw memory.
//
// A span is a run of contiguous allocator pages. In the page cache it is a
// free run keyed by page count; in the central cache it has been sliced into
// equal-size blocks chained through their first word.
package span

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/joshuapare/spanalloc/internal/sizeclass"
)

// PageID identifies an allocator page: its address shifted right by PageShift.
type PageID uintptr

// PageOf returns the page containing addr.
func PageOf(addr uintptr) PageID {
	return PageID(addr >> sizeclass.PageShift)
}

// Addr returns the first byte address of the page.
func (id PageID) Addr() uintptr {
	return uintptr(id) << sizeclass.PageShift
}

// Span is the metadata record for a run of pages.
type Span struct {
	PageID PageID // first page
	NPages int    // run length in pages

	next, prev *Span
	list       *List // list currently holding the span, nil when unlinked

	FreeList  uintptr // head of the free-block chain, 0 when empty
	UseCount  int     // blocks handed out and not yet returned
	InUse     bool    // held by the central cache or a caller; never coalesced
	ObjSize   int     // block size when sliced, requested size for oversize spans
	Scavenged bool    // pages were released to the OS while free
}

// Start returns the address of the span's first byte.
func (s *Span) Start() uintptr { return s.PageID.Addr() }

// End returns the address one past the span's last byte.
func (s *Span) End() uintptr { return (s.PageID + PageID(s.NPages)).Addr() }

// LastPage returns the id of the span's last page.
func (s *Span) LastPage() PageID { return s.PageID + PageID(s.NPages) - 1 }

// Bytes returns the span length in bytes.
func (s *Span) Bytes() int { return s.NPages << sizeclass.PageShift }

// Linked reports whether the span currently sits in a list.
func (s *Span) Linked() bool { return s.list != nil }

// Next returns the following span in its list, or nil at the end.
func (s *Span) Next() *Span {
	if s.list == nil || s.next == &s.list.head {
		return nil
	}
	return s.next
}

func (s *Span) String() string {
	return fmt.Sprintf("span{page=%#x n=%d use=%d inuse=%v obj=%d}",
		uintptr(s.PageID), s.NPages, s.UseCount, s.InUse, s.ObjSize)
}

// List is a sentinel-headed doubly linked list of spans with its own lock.
// The zero value is an empty list ready for use.
//
// The lock is exposed to the owning cache; List methods themselves do not
// lock.
type List struct {
	mu   sync.Mutex
	head Span
	n    int
}

// Lock acquires the list's lock.
func (l *List) Lock() { l.mu.Lock() }

// Unlock releases the list's lock.
func (l *List) Unlock() { l.mu.Unlock() }

func (l *List) lazyInit() {
	if l.head.next == nil {
		l.head.next = &l.head
		l.head.prev = &l.head
	}
}

// Empty reports whether the list holds no spans.
func (l *List) Empty() bool { return l.n == 0 }

// Len returns the number of spans in the list.
func (l *List) Len() int { return l.n }

// Front returns the first span, or nil when the list is empty.
func (l *List) Front() *Span {
	if l.n == 0 {
		return nil
	}
	return l.head.next
}

// PushFront inserts s at the head of the list.
func (l *List) PushFront(s *Span) {
	l.lazyInit()
	l.insertBefore(l.head.next, s)
}

// PushBack inserts s at the tail of the list.
func (l *List) PushBack(s *Span) {
	l.lazyInit()
	l.insertBefore(&l.head, s)
}

// PopFront unlinks and returns the first span, or nil when empty.
func (l *List) PopFront() *Span {
	s := l.Front()
	if s != nil {
		l.Erase(s)
	}
	return s
}

// Erase unlinks s from the list. The record itself is not freed.
func (l *List) Erase(s *Span) {
	if s.list != l {
		panic(fmt.Sprintf("span: erase of %v from a list that does not hold it", s))
	}
	s.prev.next = s.next
	s.next.prev = s.prev
	s.next, s.prev, s.list = nil, nil, nil
	l.n--
}

// insertBefore links s in front of pos.
func (l *List) insertBefore(pos, s *Span) {
	if s.list != nil || s.next != nil || s.prev != nil {
		panic(fmt.Sprintf("span: insert of %v that is still linked", s))
	}
	prev := pos.prev
	prev.next = s
	s.prev = prev
	s.next = pos
	pos.prev = s
	s.list = l
	l.n++
}

// NextBlock returns the block chained after the block at addr.
func NextBlock(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

// SetNextBlock chains next after the block at addr.
func SetNextBlock(addr, next uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = next
}

// Slice carves the span's pages into a chain of size-byte blocks, stores it
// in FreeList and returns the number of blocks. Trailing bytes smaller than
// one block are left unused.
func (s *Span) Slice(size int) int {
	start, end := s.Start(), s.End()
	step := uintptr(size)
	if start+step > end {
		panic(fmt.Sprintf("span: %v too small for %d-byte blocks", s, size))
	}

	s.FreeList = start
	tail := start
	n := 1
	for cur := start + step; cur+step <= end; cur += step {
		SetNextBlock(tail, cur)
		tail = cur
		n++
	}
	SetNextBlock(tail, 0)
	return n
}
