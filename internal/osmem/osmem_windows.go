//go:build windows

package osmem

import (
	"golang.org/x/sys/windows"
)

// sysAlloc relies on VirtualAlloc returning allocation-granularity (64 KiB)
// aligned regions, which covers the 8 KiB allocator page.
func sysAlloc(npages int) (uintptr, error) {
	return windows.VirtualAlloc(
		0,
		byteLen(npages),
		windows.MEM_COMMIT|windows.MEM_RESERVE,
		windows.PAGE_READWRITE,
	)
}

func sysFree(addr uintptr, _ int) error {
	return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}

func sysRelease(addr uintptr, npages int) error {
	_, err := windows.VirtualAlloc(addr, byteLen(npages), windows.MEM_RESET, windows.PAGE_READWRITE)
	return err
}
