package threadcache

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/spanalloc/internal/osmem"
	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/mem/central"
	"github.com/joshuapare/spanalloc/mem/pagecache"
	"github.com/joshuapare/spanalloc/pkg/types"
)

func newTestThreadCache(t testing.TB) (*ThreadCache, *central.Cache) {
	t.Helper()
	pc := pagecache.New(pagecache.Config{Source: osmem.NewCounting(nil)})
	t.Cleanup(func() { _ = pc.Close() })
	c := central.New(pc)
	return New(c), c
}

// pageBlocks maps one page and returns it carved into n blocks of size bytes.
func pageBlocks(t *testing.T, n, size int) []uintptr {
	t.Helper()
	src := osmem.System()
	addr, err := src.SystemAlloc(1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.SystemFree(addr, 1) })

	blocks := make([]uintptr, n)
	for i := range blocks {
		blocks[i] = addr + uintptr(i*size)
	}
	return blocks
}

func requirePanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected panic wrapping %v", target)
		err, ok := r.(error)
		require.True(t, ok)
		require.True(t, errors.Is(err, target), "got %v", err)
	}()
	fn()
}

func Test_FreeList_PushPop(t *testing.T) {
	blocks := pageBlocks(t, 3, 16)
	var l FreeList

	require.True(t, l.Empty())
	require.Zero(t, l.Pop())

	for _, b := range blocks {
		l.Push(b)
	}
	require.Equal(t, 3, l.Len())
	require.Equal(t, blocks[2], l.Pop())
	require.Equal(t, blocks[1], l.Pop())
	require.Equal(t, blocks[0], l.Pop())
	require.True(t, l.Empty())
	require.Zero(t, l.Len())
}

func Test_FreeList_Ranges(t *testing.T) {
	blocks := pageBlocks(t, 6, 32)
	var l FreeList

	l.Push(blocks[5])
	for i := 0; i < 4; i++ {
		*(*uintptr)(unsafe.Pointer(blocks[i])) = blocks[i+1]
	}
	l.PushRange(blocks[0], blocks[4], 5)
	require.Equal(t, 6, l.Len())

	start, end := l.PopRange(4)
	require.Equal(t, blocks[0], start)
	require.Equal(t, blocks[3], end)
	require.Zero(t, *(*uintptr)(unsafe.Pointer(end)), "popped range is terminated")
	require.Equal(t, 2, l.Len())
	require.Equal(t, blocks[4], l.Pop())
	require.Equal(t, blocks[5], l.Pop())

	require.Panics(t, func() { l.PopRange(1) })
}

func Test_ThreadCache_SlowStartGrowsBatch(t *testing.T) {
	tc, _ := newTestThreadCache(t)

	const size = 100
	idx := sizeclass.Index(size)

	// Refills request 1, 2, 3, ... blocks; each refill hands out one and
	// caches the rest, so refill k is followed by k-1 hits.
	for k := 1; k <= 5; k++ {
		require.Equal(t, k, tc.lists[idx].MaxBatch)
		fetches := tc.fetches
		tc.Allocate(size)
		require.Equal(t, fetches+1, tc.fetches)
		require.Equal(t, k-1, tc.lists[idx].Len())
		for range k - 1 {
			tc.Allocate(size)
		}
		require.Equal(t, fetches+1, tc.fetches)
	}
	require.Equal(t, 6, tc.lists[idx].MaxBatch)
}

func Test_ThreadCache_MaxBatchCappedByMoveSize(t *testing.T) {
	tc, _ := newTestThreadCache(t)

	const size = sizeclass.MaxBytes
	idx := sizeclass.Index(size)
	for range 10 {
		tc.Allocate(size)
	}
	require.Equal(t, sizeclass.NumMoveSize(size), tc.lists[idx].MaxBatch)
}

func Test_ThreadCache_SevenAllocsOneSpan(t *testing.T) {
	tc, c := newTestThreadCache(t)

	const size = 6
	blocks := make([]uintptr, 7)
	for i := range blocks {
		blocks[i] = tc.Allocate(size)
	}
	require.Equal(t, 1, c.Stats().SpansFetched)

	for _, b := range blocks {
		tc.Deallocate(b, size)
	}
	st := c.Stats()
	require.Equal(t, 1, st.SpansReleased)
	require.Empty(t, st.Buckets)
	require.Zero(t, tc.lists[sizeclass.Index(size)].Len())
}

func Test_ThreadCache_DeallocateHandsBackExactlyMaxBatch(t *testing.T) {
	tc, c := newTestThreadCache(t)

	const size = 512
	idx := sizeclass.Index(size)
	var held []uintptr
	for range 10 {
		held = append(held, tc.Allocate(size))
	}
	l := &tc.lists[idx]
	before := l.Len()
	maxBatch := l.MaxBatch
	require.Less(t, before, maxBatch)

	lent := c.Stats().Buckets[0].Lent
	need := maxBatch - before
	for _, b := range held[:need] {
		tc.Deallocate(b, size)
	}
	require.Zero(t, l.Len())
	require.Equal(t, lent-maxBatch, c.Stats().Buckets[0].Lent)
}

func Test_ThreadCache_AllocatedBlocksAreDistinctAndWritable(t *testing.T) {
	tc, _ := newTestThreadCache(t)

	sizes := []int{1, 8, 9, 127, 128, 129, 1000, 1024, 1025, 8 << 10, 64<<10 + 1, sizeclass.MaxBytes}
	seen := make(map[uintptr]int)
	for _, size := range sizes {
		for range 3 {
			b := tc.Allocate(size)
			prev, dup := seen[b]
			require.False(t, dup, "block %#x handed out for %d and %d", b, prev, size)
			seen[b] = size

			buf := unsafe.Slice((*byte)(unsafe.Pointer(b)), size)
			for i := range buf {
				buf[i] = byte(size)
			}
		}
	}
	for b, size := range seen {
		require.Equal(t, byte(size), *(*byte)(unsafe.Pointer(b + uintptr(size) - 1)))
		tc.Deallocate(b, size)
	}
}

func Test_ThreadCache_FlushDrainsEverything(t *testing.T) {
	tc, c := newTestThreadCache(t)

	for _, size := range []int{16, 300, 5000} {
		var held []uintptr
		for range 20 {
			held = append(held, tc.Allocate(size))
		}
		for _, b := range held {
			tc.Deallocate(b, size)
		}
	}
	require.NotEmpty(t, tc.Stats().Buckets)

	tc.Flush()
	for _, b := range tc.Stats().Buckets {
		require.Zero(t, b.Len)
		require.Greater(t, b.MaxBatch, 1, "slow-start state survives a flush")
	}

	st := c.Stats()
	require.Empty(t, st.Buckets)
	require.Equal(t, st.SpansFetched, st.SpansReleased)
}

func Test_ThreadCache_CloseDetaches(t *testing.T) {
	tc, c := newTestThreadCache(t)

	b := tc.Allocate(40)
	tc.Deallocate(b, 40)
	tc.Close()
	tc.Close()

	require.Empty(t, c.Stats().Buckets)
	requirePanicsWith(t, types.ErrClosed, func() { tc.Allocate(40) })
	requirePanicsWith(t, types.ErrClosed, func() { tc.Deallocate(b, 40) })
}

func Test_ThreadCache_ContractViolationsPanic(t *testing.T) {
	tc, _ := newTestThreadCache(t)

	requirePanicsWith(t, types.ErrSizeTooLarge, func() { tc.Allocate(sizeclass.MaxBytes + 1) })
	requirePanicsWith(t, types.ErrZeroSize, func() { tc.Allocate(0) })
	requirePanicsWith(t, types.ErrNilPointer, func() { tc.Deallocate(0, 8) })
}

func Benchmark_ThreadCache_AllocFree(b *testing.B) {
	tc, _ := newTestThreadCache(b)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		blk := tc.Allocate(64)
		tc.Deallocate(blk, 64)
	}
}
