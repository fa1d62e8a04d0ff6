package osmem

import (
	"sync/atomic"

	"github.com/joshuapare/spanalloc/pkg/types"
)

// Counting wraps a page source and counts the calls made through it.
// Tests use it to observe when the page cache goes to the OS.
type Counting struct {
	src types.PageSource

	allocs   atomic.Int64
	frees    atomic.Int64
	releases atomic.Int64
	mapped   atomic.Int64 // pages currently mapped
}

var _ types.PageSource = (*Counting)(nil)

// NewCounting wraps src. A nil src wraps System().
func NewCounting(src types.PageSource) *Counting {
	if src == nil {
		src = System()
	}
	return &Counting{src: src}
}

func (c *Counting) SystemAlloc(npages int) (uintptr, error) {
	addr, err := c.src.SystemAlloc(npages)
	if err != nil {
		return 0, err
	}
	c.allocs.Add(1)
	c.mapped.Add(int64(npages))
	return addr, nil
}

func (c *Counting) SystemFree(addr uintptr, npages int) error {
	if err := c.src.SystemFree(addr, npages); err != nil {
		return err
	}
	c.frees.Add(1)
	c.mapped.Add(-int64(npages))
	return nil
}

func (c *Counting) Release(addr uintptr, npages int) error {
	if err := c.src.Release(addr, npages); err != nil {
		return err
	}
	c.releases.Add(1)
	return nil
}

// Allocs returns the number of successful SystemAlloc calls.
func (c *Counting) Allocs() int { return int(c.allocs.Load()) }

// Frees returns the number of successful SystemFree calls.
func (c *Counting) Frees() int { return int(c.frees.Load()) }

// Releases returns the number of successful Release calls.
func (c *Counting) Releases() int { return int(c.releases.Load()) }

// MappedPages returns the pages mapped through c and not yet freed.
func (c *Counting) MappedPages() int { return int(c.mapped.Load()) }
