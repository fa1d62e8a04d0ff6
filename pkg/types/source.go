package types

// PageSource is the operating-system collaborator the page cache grows from.
// All addresses are aligned to the allocator page size and all lengths are
// counted in allocator pages.
type PageSource interface {
	// SystemAlloc maps npages fresh, zeroed, page-aligned pages.
	SystemAlloc(npages int) (uintptr, error)

	// SystemFree unmaps a range previously returned by SystemAlloc.
	SystemFree(addr uintptr, npages int) error

	// Release tells the OS the contents of the range are no longer needed.
	// The range stays mapped and reads back as zero on next touch.
	Release(addr uintptr, npages int) error
}
