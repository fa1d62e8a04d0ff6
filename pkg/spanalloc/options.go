package spanalloc

import (
	"log/slog"

	"github.com/joshuapare/spanalloc/internal/logger"
	"github.com/joshuapare/spanalloc/internal/osmem"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// PageSource is the operating-system page primitive a Heap grows from
// (re-exported for convenience).
type PageSource = types.PageSource

// Options controls heap behavior.
type Options struct {
	// Source supplies pages from the operating system.
	// Default: the mmap/VirtualAlloc backed source.
	Source PageSource

	// Logger receives cold-path events (growth, large mappings, scavenges,
	// close). Default: the package logger, silent unless SPANALLOC_LOG is set.
	Logger *slog.Logger

	// ScavengeThreshold is the number of free pages above which freed spans
	// trigger a scavenge. Zero leaves scavenging to Heap.Scavenge.
	ScavengeThreshold int
}

// DefaultOptions returns the options New uses when given nil.
func DefaultOptions() *Options {
	return &Options{
		Source: osmem.System(),
		Logger: logger.L,
	}
}
