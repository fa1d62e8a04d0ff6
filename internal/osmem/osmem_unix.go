//go:build linux || darwin || freebsd

package osmem

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/spanalloc/internal/sizeclass"
)

// sysAlloc maps one page more than asked and trims the unaligned head and
// tail so the result starts on an allocator page boundary.
func sysAlloc(npages int) (uintptr, error) {
	size := byteLen(npages)
	length := size + sizeclass.PageSize

	p, err := unix.MmapPtr(
		-1,
		0,
		nil,
		length,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return 0, err
	}

	base := uintptr(p)
	aligned := (base + sizeclass.PageMask) &^ uintptr(sizeclass.PageMask)
	if head := aligned - base; head != 0 {
		if err := unix.MunmapPtr(p, head); err != nil {
			_ = unix.MunmapPtr(p, length)
			return 0, err
		}
	}
	if tail := base + length - (aligned + size); tail != 0 {
		if err := unix.MunmapPtr(unsafe.Pointer(aligned+size), tail); err != nil {
			_ = unix.MunmapPtr(unsafe.Pointer(aligned), size)
			return 0, err
		}
	}
	return aligned, nil
}

func sysFree(addr uintptr, npages int) error {
	return unix.MunmapPtr(unsafe.Pointer(addr), byteLen(npages))
}

func sysRelease(addr uintptr, npages int) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), byteLen(npages))
	return unix.Madvise(b, unix.MADV_DONTNEED)
}
