// Package scavenge batches idle page ranges and hands them back to the
// operating system in as few calls as possible.
//
// The page cache adds every free span it wants to scavenge, then calls
// Flush. Ranges are sorted and adjacent or overlapping ranges are merged
// before the page source sees them, so a bucket full of neighbouring
// one-page spans costs a single madvise.
package scavenge

import (
	"fmt"
	"sort"

	"github.com/joshuapare/spanalloc/mem/span"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// Range is a run of pages.
type Range struct {
	Page   span.PageID
	NPages int
}

// End returns the page one past the range.
func (r Range) End() span.PageID { return r.Page + span.PageID(r.NPages) }

// Tracker collects ranges awaiting release.
//
// NOT thread-safe. The page cache calls it under its global lock.
type Tracker struct {
	ranges []Range
}

// Add records npages pages starting at page for the next Flush.
// Zero-length ranges are ignored.
func (t *Tracker) Add(page span.PageID, npages int) {
	if npages <= 0 {
		return
	}
	t.ranges = append(t.ranges, Range{Page: page, NPages: npages})
}

// Pending returns the number of ranges added since the last Flush.
func (t *Tracker) Pending() int { return len(t.ranges) }

// Flush releases every pending range through src and clears the tracker.
// It returns the number of pages released. On error the ranges not yet
// released stay pending.
//
// bounds are the regions src handed out in separate SystemAlloc calls. A
// merged range never crosses the edge of one, since some systems only
// release within a single reservation.
func (t *Tracker) Flush(src types.PageSource, bounds ...Range) (int, error) {
	merged := split(t.coalesce(), bounds)
	released := 0
	for i, r := range merged {
		if err := src.Release(r.Page.Addr(), r.NPages); err != nil {
			t.ranges = append(t.ranges[:0], merged[i:]...)
			return released, fmt.Errorf("scavenge: release %d pages at %#x: %w",
				r.NPages, r.Page.Addr(), err)
		}
		released += r.NPages
	}
	t.ranges = t.ranges[:0]
	return released, nil
}

// Reset drops every pending range without releasing it.
func (t *Tracker) Reset() {
	t.ranges = t.ranges[:0]
}

// coalesce sorts the pending ranges and merges overlapping or adjacent ones.
func (t *Tracker) coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	sorted := make([]Range, len(t.ranges))
	copy(sorted, t.ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Page < sorted[j].Page
	})

	merged := make([]Range, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Page <= current.End() {
			if end := next.End(); end > current.End() {
				current.NPages = int(end - current.Page)
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

// split cuts sorted ranges at every bound edge falling strictly inside one.
func split(ranges, bounds []Range) []Range {
	if len(bounds) == 0 || len(ranges) == 0 {
		return ranges
	}

	edges := make([]span.PageID, 0, 2*len(bounds))
	for _, b := range bounds {
		edges = append(edges, b.Page, b.End())
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })

	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		cur := r.Page
		for _, e := range edges {
			if e <= cur {
				continue
			}
			if e >= r.End() {
				break
			}
			out = append(out, Range{Page: cur, NPages: int(e - cur)})
			cur = e
		}
		out = append(out, Range{Page: cur, NPages: int(r.End() - cur)})
	}
	return out
}
