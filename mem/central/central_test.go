package central

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/spanalloc/internal/osmem"
	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/mem/pagecache"
	"github.com/joshuapare/spanalloc/mem/span"
	"github.com/joshuapare/spanalloc/pkg/types"
)

func newTestCentral(t testing.TB) (*Cache, *osmem.Counting) {
	t.Helper()
	src := osmem.NewCounting(nil)
	pc := pagecache.New(pagecache.Config{Source: src})
	t.Cleanup(func() { _ = pc.Close() })
	return New(pc), src
}

func chain(start uintptr) []uintptr {
	var out []uintptr
	for b := start; b != 0; b = span.NextBlock(b) {
		out = append(out, b)
	}
	return out
}

func Test_Central_FetchSlicesOneSpan(t *testing.T) {
	c, src := newTestCentral(t)

	const size = 64
	start, end, n := c.FetchRangeObj(10, size)
	require.Equal(t, 10, n)

	blocks := chain(start)
	require.Len(t, blocks, n)
	require.Equal(t, end, blocks[len(blocks)-1])
	require.Equal(t, 1, src.Allocs())

	s := c.Pages().MapObjectToSpan(start)
	require.Equal(t, size, s.ObjSize)
	require.Equal(t, sizeclass.NumMovePage(size), s.NPages)
	require.Equal(t, n, s.UseCount)
	require.True(t, s.InUse)

	seen := make(map[uintptr]bool)
	for _, b := range blocks {
		require.False(t, seen[b])
		seen[b] = true
		require.Zero(t, (b-s.Start())%size, "block %#x misaligned", b)
		require.Same(t, s, c.Pages().MapObjectToSpan(b))
	}

	// A second fetch is served from the same span.
	start2, _, n2 := c.FetchRangeObj(5, size)
	require.Equal(t, 5, n2)
	require.Same(t, s, c.Pages().MapObjectToSpan(start2))
	require.Equal(t, 15, s.UseCount)
	require.Equal(t, 1, c.Stats().SpansFetched)
}

func Test_Central_FetchPartialBatch(t *testing.T) {
	c, _ := newTestCentral(t)

	// A 256 KiB class span holds exactly NumMoveSize = 2 blocks.
	const size = sizeclass.MaxBytes
	start, _, n := c.FetchRangeObj(3, size)
	require.Equal(t, 2, n)
	require.Len(t, chain(start), 2)

	// The exhausted span stays in the bucket; the next fetch slices another.
	start2, _, n2 := c.FetchRangeObj(1, size)
	require.Equal(t, 1, n2)
	require.NotSame(t, c.Pages().MapObjectToSpan(start), c.Pages().MapObjectToSpan(start2))

	st := c.Stats()
	require.Equal(t, 2, st.SpansFetched)
	require.Len(t, st.Buckets, 1)
	require.Equal(t, types.ClassBucket{Class: sizeclass.NumClasses - 1, Size: size, Spans: 2, Lent: 3, Free: 1}, st.Buckets[0])
}

func Test_Central_ReleaseReturnsEmptySpans(t *testing.T) {
	c, _ := newTestCentral(t)

	const size = 1024
	start, _, n := c.FetchRangeObj(8, size)
	require.Equal(t, 8, n)
	require.Equal(t, sizeclass.MaxPages-sizeclass.NumMovePage(size), c.Pages().Stats().FreePages)

	c.ReleaseListToSpans(start, size)

	st := c.Stats()
	require.Empty(t, st.Buckets)
	require.Equal(t, 1, st.SpansReleased)

	ps := c.Pages().Stats()
	require.Equal(t, sizeclass.MaxPages, ps.FreePages)
	require.Equal(t, ps.SpansGranted, ps.SpansReturned)
}

func Test_Central_PartialReleaseKeepsSpan(t *testing.T) {
	c, _ := newTestCentral(t)

	const size = 48
	start, _, n := c.FetchRangeObj(4, size)
	require.Equal(t, 4, n)

	// Split the chain: give back the first two blocks only.
	blocks := chain(start)
	span.SetNextBlock(blocks[1], 0)
	c.ReleaseListToSpans(blocks[0], size)

	st := c.Stats()
	require.Len(t, st.Buckets, 1)
	require.Equal(t, 2, st.Buckets[0].Lent)
	require.Zero(t, st.SpansReleased)

	c.ReleaseListToSpans(blocks[2], size)
	require.Equal(t, 1, c.Stats().SpansReleased)
}

func Test_Central_ReleaseForeignBlockPanics(t *testing.T) {
	c, _ := newTestCentral(t)

	start, _, _ := c.FetchRangeObj(1, 32)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		require.ErrorIs(t, err, types.ErrUnknownAddress)

		// The bucket lock was released before panicking.
		_, _, n := c.FetchRangeObj(1, 64)
		require.Equal(t, 1, n)
	}()

	// A class 32 block handed to the class 64 bucket.
	c.ReleaseListToSpans(start, 64)
}

func Test_Central_ReleaseStalePageEntryPanics(t *testing.T) {
	c, _ := newTestCentral(t)
	pages := c.Pages()

	// Split a fresh chunk, then merge it back. The absorbed remainder's
	// first page keeps a page-map entry naming its recycled record.
	pages.Lock()
	s := pages.NewSpan(33)
	base := s.Start()
	pages.ReleaseSpan(s)
	pages.Unlock()

	// The next one-page span reuses that record at the chunk start.
	start, _, n := c.FetchRangeObj(1, 8)
	require.Equal(t, 1, n)
	require.Equal(t, base, start)

	foreign := base + 33*sizeclass.PageSize
	span.SetNextBlock(foreign, 0)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		require.ErrorIs(t, err, types.ErrUnknownAddress)

		// The real block still goes home.
		c.ReleaseListToSpans(start, 8)
		require.Empty(t, c.Stats().Buckets)
	}()

	c.ReleaseListToSpans(foreign, 8)
}

func Test_Central_ConcurrentFetchRelease(t *testing.T) {
	c, _ := newTestCentral(t)

	sizes := []int{16, 24, 200, 3000, 40 << 10}
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			size := sizes[g%len(sizes)]
			for i := range 300 {
				start, _, n := c.FetchRangeObj(1+i%7, size)
				blocks := chain(start)
				if !assert.Len(t, blocks, n) {
					return
				}
				// Canaries sit past the link word.
				for _, b := range blocks {
					*(*byte)(unsafe.Pointer(b + uintptr(size) - 1)) = byte(g)
				}
				for _, b := range blocks {
					assert.Equal(t, byte(g), *(*byte)(unsafe.Pointer(b + uintptr(size) - 1)))
				}
				c.ReleaseListToSpans(start, size)
			}
		}(g)
	}
	wg.Wait()

	st := c.Stats()
	for _, b := range st.Buckets {
		require.Zero(t, b.Lent, "class %d still lends blocks", b.Class)
	}
	require.Equal(t, st.SpansFetched, st.SpansReleased)
}
