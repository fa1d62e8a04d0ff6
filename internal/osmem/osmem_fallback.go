//go:build !linux && !darwin && !freebsd && !windows

package osmem

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/joshuapare/spanalloc/internal/sizeclass"
)

// Without anonymous mappings, pages come from Go-heap buffers that are kept
// reachable until freed.
var (
	fallbackMu   sync.Mutex
	fallbackBufs = map[uintptr][]byte{}
)

func sysAlloc(npages int) (uintptr, error) {
	buf := make([]byte, byteLen(npages)+sizeclass.PageSize)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + sizeclass.PageMask) &^ uintptr(sizeclass.PageMask)

	fallbackMu.Lock()
	fallbackBufs[aligned] = buf
	fallbackMu.Unlock()
	return aligned, nil
}

func sysFree(addr uintptr, _ int) error {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	if _, ok := fallbackBufs[addr]; !ok {
		return errors.New("unknown mapping")
	}
	delete(fallbackBufs, addr)
	return nil
}

func sysRelease(addr uintptr, npages int) error {
	clear(unsafe.Slice((*byte)(unsafe.Pointer(addr)), byteLen(npages)))
	return nil
}
