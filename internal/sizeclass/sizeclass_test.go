package sizeclass

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RoundUp_Stages(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{1, 8},
		{8, 8},
		{9, 16},
		{128, 128},
		{129, 144},
		{1024, 1024},
		{1025, 1152},
		{8 << 10, 8 << 10},
		{8<<10 + 1, 9 << 10},
		{64 << 10, 64 << 10},
		{64<<10 + 1, 72 << 10},
		{MaxBytes, MaxBytes},
		{MaxBytes + 1, MaxBytes + PageSize},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundUp(tt.in), "RoundUp(%d)", tt.in)
	}
}

func Test_RoundUp_IdempotentAndCovering(t *testing.T) {
	for n := 1; n <= MaxBytes; n++ {
		r := RoundUp(n)
		if r < n {
			t.Fatalf("RoundUp(%d) = %d < n", n, r)
		}
		if RoundUp(r) != r {
			t.Fatalf("RoundUp not idempotent at %d: %d -> %d", n, r, RoundUp(r))
		}
	}
}

func Test_Index_Boundaries(t *testing.T) {
	assert.Equal(t, 0, Index(1))
	assert.Equal(t, 0, Index(8))
	assert.Equal(t, 15, Index(128))
	assert.Equal(t, 16, Index(129))
	assert.Equal(t, 71, Index(1024))
	assert.Equal(t, 72, Index(1025))
	assert.Equal(t, 127, Index(8<<10))
	assert.Equal(t, 183, Index(64<<10))
	assert.Equal(t, NumClasses-1, Index(MaxBytes))
}

func Test_Index_MonotonicAndCollisionFree(t *testing.T) {
	prevIdx, prevSize := -1, 0
	for n := 1; n <= MaxBytes; n++ {
		idx := Index(n)
		aligned := RoundUp(n)
		switch {
		case idx < prevIdx:
			t.Fatalf("Index decreased at %d: %d -> %d", n, prevIdx, idx)
		case idx == prevIdx && aligned != prevSize:
			t.Fatalf("sizes sharing bucket %d round up differently: %d vs %d", idx, prevSize, aligned)
		case idx > prevIdx && (idx != prevIdx+1 || aligned <= prevSize):
			t.Fatalf("bucket step at %d: idx %d -> %d, size %d -> %d", n, prevIdx, idx, prevSize, aligned)
		}
		if Size(idx) != aligned {
			t.Fatalf("Size(Index(%d)) = %d, want %d", n, Size(idx), aligned)
		}
		prevIdx, prevSize = idx, aligned
	}
	require.Equal(t, NumClasses-1, prevIdx)
}

func Test_Index_PanicsOutOfRange(t *testing.T) {
	assertPanicsWith(t, ErrSizeTooLarge, func() { Index(MaxBytes + 1) })
	assertPanicsWith(t, ErrZeroSize, func() { Index(0) })
}

func Test_NumMoveSize_Clamp(t *testing.T) {
	assert.Equal(t, 512, NumMoveSize(8))
	assert.Equal(t, 512, NumMoveSize(512))
	assert.Equal(t, 256, NumMoveSize(1024))
	assert.Equal(t, 2, NumMoveSize(128<<10))
	assert.Equal(t, 2, NumMoveSize(MaxBytes))
}

func Test_NumMovePage_FloorsAtOnePage(t *testing.T) {
	// 512 blocks of 8 bytes is 4 KiB: less than a page.
	assert.Equal(t, 1, NumMovePage(8))
	assert.Equal(t, 1, NumMovePage(16))
	assert.Equal(t, 32, NumMovePage(512))
	assert.Equal(t, 64, NumMovePage(MaxBytes))

	for i := range NumClasses {
		np := NumMovePage(Size(i))
		require.GreaterOrEqual(t, np, 1)
		require.LessOrEqual(t, np, MaxPages, "class %d needs more pages than the page cache tracks", i)
	}
}

func Test_PagesFor(t *testing.T) {
	assert.Equal(t, 1, PagesFor(1))
	assert.Equal(t, 1, PagesFor(PageSize))
	assert.Equal(t, 2, PagesFor(PageSize+1))
	assert.Equal(t, 33, PagesFor(257<<10))
}

func assertPanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.True(t, errors.Is(err, target), "got %v, want %v", err, target)
	}()
	fn()
}
