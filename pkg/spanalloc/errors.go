package spanalloc

import (
	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// Errors carried by allocator panics (re-exported for convenience).
// Match them with errors.Is after recover.
var (
	ErrZeroSize       = types.ErrZeroSize
	ErrSizeTooLarge   = types.ErrSizeTooLarge
	ErrNilPointer     = types.ErrNilPointer
	ErrUnknownAddress = types.ErrUnknownAddress
	ErrOutOfRange     = types.ErrOutOfRange
	ErrOutOfMemory    = types.ErrOutOfMemory
	ErrClosed         = types.ErrClosed
)

// Allocator geometry.
const (
	// PageSize is the allocator page size in bytes.
	PageSize = sizeclass.PageSize

	// MaxBytes is the largest request served by the per-goroutine caches.
	MaxBytes = sizeclass.MaxBytes

	// MaxPages is the largest span, in pages, kept by the page cache.
	// Requests needing more pages are mapped straight from the OS.
	MaxPages = sizeclass.MaxPages
)
