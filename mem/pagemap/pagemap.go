// Package pagemap implements the three-level radix tree that maps page ids to
// their owning spans.
//
// Interior and leaf nodes are created on first write and never removed, and
// every slot is an atomic pointer, so Get needs no lock: a reader either sees
// a fully published node or nil. Writers (Ensure, Set) must be serialized by
// the caller; the page cache does this with its global lock.
package pagemap

import (
	"fmt"
	"sync/atomic"

	"github.com/joshuapare/spanalloc/internal/objpool"
	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/mem/span"
	"github.com/joshuapare/spanalloc/pkg/types"
)

const (
	ptrBits  = 32 << (^uintptr(0) >> 63)
	addrBits = min(48, ptrBits)

	// Bits is the width of the page-id space covered by the map.
	// 48-bit addresses with 8 KiB pages give 35 bits, split 12/12/11.
	Bits = addrBits - sizeclass.PageShift

	rootBits     = (Bits + 2) / 3
	interiorBits = (Bits + 1) / 3
	leafBits     = Bits - rootBits - interiorBits

	rootLen     = 1 << rootBits
	interiorLen = 1 << interiorBits
	leafLen     = 1 << leafBits
)

type leaf struct {
	values [leafLen]atomic.Pointer[span.Span]
}

type node struct {
	leaves [interiorLen]atomic.Pointer[leaf]
}

// PageMap maps page ids to spans. Use New to create one.
type PageMap struct {
	root [rootLen]atomic.Pointer[node]

	nodePool objpool.Pool[node]
	leafPool objpool.Pool[leaf]
}

// New returns an empty page map. Only the root directory is allocated.
func New() *PageMap {
	return &PageMap{}
}

func split(id span.PageID) (i1, i2, i3 uintptr) {
	v := uintptr(id)
	i1 = v >> (leafBits + interiorBits)
	i2 = (v >> leafBits) & (interiorLen - 1)
	i3 = v & (leafLen - 1)
	return i1, i2, i3
}

func inRange(id span.PageID) bool {
	return uintptr(id)>>Bits == 0
}

// Ensure materializes the interior and leaf nodes on the path to id.
// It is idempotent. Callers must serialize writers.
func (m *PageMap) Ensure(id span.PageID) {
	if !inRange(id) {
		panic(fmt.Errorf("%w: %#x", types.ErrOutOfRange, uintptr(id)))
	}
	i1, i2, _ := split(id)

	n := m.root[i1].Load()
	if n == nil {
		n = m.nodePool.New()
		m.root[i1].Store(n)
	}
	if n.leaves[i2].Load() == nil {
		n.leaves[i2].Store(m.leafPool.New())
	}
}

// Set records s as the owner of page id. A nil s clears the entry.
// Callers must serialize writers.
func (m *PageMap) Set(id span.PageID, s *span.Span) {
	m.Ensure(id)
	i1, i2, i3 := split(id)
	m.root[i1].Load().leaves[i2].Load().values[i3].Store(s)
}

// SetRange records s as the owner of every page in [id, id+n).
func (m *PageMap) SetRange(id span.PageID, n int, s *span.Span) {
	for i := range n {
		m.Set(id+span.PageID(i), s)
	}
}

// Get returns the span recorded for page id, or nil when none is. It never
// allocates and is safe to call concurrently with writers.
func (m *PageMap) Get(id span.PageID) *span.Span {
	if !inRange(id) {
		return nil
	}
	i1, i2, i3 := split(id)

	n := m.root[i1].Load()
	if n == nil {
		return nil
	}
	l := n.leaves[i2].Load()
	if l == nil {
		return nil
	}
	return l.values[i3].Load()
}

// Nodes returns the number of interior and leaf nodes materialized so far.
// Callers must serialize with writers.
func (m *PageMap) Nodes() int {
	return m.nodePool.InUse() + m.leafPool.InUse()
}
