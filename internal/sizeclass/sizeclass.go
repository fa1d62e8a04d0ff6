// Package sizeclass maps request sizes to aligned block sizes and bucket
// indexes, and computes the batch limits used when blocks move between tiers.
//
// Alignment grows in stages so that small sizes waste little space while the
// bucket table stays small:
//
//	[1, 128]          8 B   (16 buckets)
//	(128, 1024]       16 B  (56 buckets)
//	(1 KiB, 8 KiB]    128 B (56 buckets)
//	(8 KiB, 64 KiB]   1 KiB (56 buckets)
//	(64 KiB, 256 KiB] 8 KiB (24 buckets)
package sizeclass

import (
	"fmt"

	"github.com/joshuapare/spanalloc/pkg/types"
)

const (
	// PageShift is log2 of the allocator page size.
	PageShift = 13

	// PageSize is the allocator page size (8 KiB).
	PageSize = 1 << PageShift

	// PageMask masks the offset of an address within its page.
	PageMask = PageSize - 1

	// MaxBytes is the front-end ceiling. Larger requests bypass the thread
	// and central caches.
	MaxBytes = 256 << 10

	// NumClasses is the number of size-class buckets.
	NumClasses = 208

	// NumPages is K: page-count buckets 1..NumPages-1 are tracked by the
	// page cache, and the OS is asked for NumPages-1 pages at a time.
	NumPages = 129

	// MaxPages is the largest span the page cache keeps in its buckets.
	MaxPages = NumPages - 1

	minBatch = 2
	maxBatch = 512
)

var (
	// ErrSizeTooLarge indicates a size above MaxBytes on a front-end-only path.
	ErrSizeTooLarge = types.ErrSizeTooLarge

	// ErrZeroSize indicates a zero-byte request.
	ErrZeroSize = types.ErrZeroSize
)

// stage describes one alignment band of the size-class table.
type stage struct {
	limit int // inclusive upper bound of the band
	shift uint
	count int // buckets in this band
}

var stages = [...]stage{
	{limit: 128, shift: 3, count: 16},
	{limit: 1024, shift: 4, count: 56},
	{limit: 8 << 10, shift: 7, count: 56},
	{limit: 64 << 10, shift: 10, count: 56},
	{limit: MaxBytes, shift: 13, count: 24},
}

// alignUp rounds n up to a multiple of align. align must be a power of 2.
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// RoundUp returns the aligned block size for a request of n bytes.
// Sizes above MaxBytes are rounded to a whole number of pages.
//
// Example:
//
//	RoundUp(1)    = 8
//	RoundUp(129)  = 144
//	RoundUp(1025) = 1152
func RoundUp(n int) int {
	for _, st := range stages {
		if n <= st.limit {
			return alignUp(n, 1<<st.shift)
		}
	}
	return alignUp(n, PageSize)
}

// Index returns the bucket index for a request of n bytes.
// It panics if n is zero or exceeds MaxBytes.
func Index(n int) int {
	if n <= 0 {
		panic(fmt.Errorf("%w: got %d", ErrZeroSize, n))
	}
	if n > MaxBytes {
		panic(fmt.Errorf("%w: %d > %d", ErrSizeTooLarge, n, MaxBytes))
	}

	base, lower := 0, 0
	for _, st := range stages {
		if n <= st.limit {
			return base + ((n-lower+(1<<st.shift)-1)>>st.shift - 1)
		}
		base += st.count
		lower = st.limit
	}
	panic("sizeclass: unreachable")
}

// Size returns the aligned block size of bucket idx. It is the inverse of
// Index for aligned sizes: Index(Size(i)) == i.
func Size(idx int) int {
	if idx < 0 || idx >= NumClasses {
		panic(fmt.Errorf("sizeclass: bucket %d out of range [0, %d)", idx, NumClasses))
	}
	lower := 0
	for _, st := range stages {
		if idx < st.count {
			return lower + (idx+1)<<st.shift
		}
		idx -= st.count
		lower = st.limit
	}
	panic("sizeclass: unreachable")
}

// NumMoveSize is the most blocks of size n moved in one refill: MaxBytes/n
// clamped to [2, 512]. Small objects move in large batches to amortize lock
// traffic, large objects in small ones to bound over-provisioning.
func NumMoveSize(n int) int {
	if n <= 0 {
		panic(fmt.Errorf("%w: got %d", ErrZeroSize, n))
	}
	num := MaxBytes / n
	if num > maxBatch {
		num = maxBatch
	}
	if num < minBatch {
		num = minBatch
	}
	return num
}

// NumMovePage is the span size, in pages, the central cache requests from the
// page cache when a class of size n runs dry. Never less than one page.
func NumMovePage(n int) int {
	npage := (NumMoveSize(n) * n) >> PageShift
	if npage == 0 {
		npage = 1
	}
	return npage
}

// PagesFor returns the number of pages needed to hold n bytes.
func PagesFor(n int) int {
	return alignUp(n, PageSize) >> PageShift
}
