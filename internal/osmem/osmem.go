// Package osmem provides the operating-system page primitive the page cache
// grows from: page-aligned anonymous mappings, their release, and advisory
// hand-back of idle pages.
//
// Mapping is platform-specific (x/sys/unix on Unix, x/sys/windows on
// Windows); other platforms fall back to aligned Go-heap buffers.
package osmem

import (
	"fmt"

	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// Source is the default types.PageSource backed by the operating system.
// Its zero value is ready for use.
type Source struct{}

var _ types.PageSource = Source{}

// System returns the OS-backed page source.
func System() Source { return Source{} }

// SystemAlloc maps npages fresh pages aligned to the allocator page size.
func (Source) SystemAlloc(npages int) (uintptr, error) {
	if npages <= 0 {
		return 0, fmt.Errorf("osmem: invalid page count %d", npages)
	}
	addr, err := sysAlloc(npages)
	if err != nil {
		return 0, fmt.Errorf("osmem: map %d pages: %w", npages, err)
	}
	if addr&sizeclass.PageMask != 0 {
		return 0, fmt.Errorf("osmem: mapping %#x not aligned to %d bytes", addr, sizeclass.PageSize)
	}
	return addr, nil
}

// SystemFree unmaps a range returned by SystemAlloc.
func (Source) SystemFree(addr uintptr, npages int) error {
	if err := sysFree(addr, npages); err != nil {
		return fmt.Errorf("osmem: unmap %#x (%d pages): %w", addr, npages, err)
	}
	return nil
}

// Release advises the OS that the range's contents are no longer needed.
// The range stays mapped; its contents are undefined afterwards (zero on
// Linux).
func (Source) Release(addr uintptr, npages int) error {
	if err := sysRelease(addr, npages); err != nil {
		return fmt.Errorf("osmem: release %#x (%d pages): %w", addr, npages, err)
	}
	return nil
}

// byteLen converts a page count to a byte length.
func byteLen(npages int) uintptr {
	return uintptr(npages) << sizeclass.PageShift
}
