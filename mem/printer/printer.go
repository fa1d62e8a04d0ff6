// Package printer renders allocator statistics and the size-class table for
// humans (aligned text with grouped digits) or tools (JSON).
package printer

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// Format specifies the output format for printing.
type Format string

const (
	// FormatText outputs human-readable text format.
	FormatText Format = "text"

	// FormatJSON outputs JSON format.
	FormatJSON Format = "json"
)

// Options controls printing behavior.
type Options struct {
	// Format specifies output format (text, json).
	// Default: FormatText
	Format Format

	// ShowEmpty includes buckets with nothing in them (text and JSON).
	// Default: false
	ShowEmpty bool

	// Language selects digit grouping for text output.
	// Default: language.English ("1,048,576")
	Language language.Tag
}

// DefaultOptions returns sensible defaults for printing.
func DefaultOptions() Options {
	return Options{
		Format:   FormatText,
		Language: language.English,
	}
}

// Printer writes formatted statistics to an io.Writer.
type Printer struct {
	opts   Options
	writer io.Writer
	msg    *message.Printer
}

// New creates a new Printer writing to w.
//
// Example:
//
//	p := printer.New(os.Stdout, printer.DefaultOptions())
//	p.PrintHeap(heap.Stats())
func New(w io.Writer, opts Options) *Printer {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if opts.Language == language.Und {
		opts.Language = language.English
	}
	return &Printer{
		opts:   opts,
		writer: w,
		msg:    message.NewPrinter(opts.Language),
	}
}

// PrintHeap prints the page-cache and central-cache statistics of a heap.
func (p *Printer) PrintHeap(st types.HeapStats) error {
	if p.opts.Format == FormatJSON {
		return p.printJSON(p.heapJSON(st))
	}
	return p.printHeapText(st)
}

// PrintCache prints the statistics of one per-goroutine cache.
func (p *Printer) PrintCache(st types.ThreadCacheStats) error {
	if p.opts.Format == FormatJSON {
		return p.printJSON(st)
	}
	return p.printCacheText(st)
}

// ClassInfo describes one size class.
type ClassInfo struct {
	Class      int `json:"class"`
	Size       int `json:"size"`        // block size in bytes
	MoveBlocks int `json:"move_blocks"` // most blocks moved per refill
	SpanPages  int `json:"span_pages"`  // pages per central span
	SpanBlocks int `json:"span_blocks"` // blocks carved from one span
	WasteBytes int `json:"waste_bytes"` // unusable tail of each span
}

// Classes returns the size-class table.
func Classes() []ClassInfo {
	out := make([]ClassInfo, sizeclass.NumClasses)
	for idx := range out {
		size := sizeclass.Size(idx)
		pages := sizeclass.NumMovePage(size)
		spanBytes := pages << sizeclass.PageShift
		out[idx] = ClassInfo{
			Class:      idx,
			Size:       size,
			MoveBlocks: sizeclass.NumMoveSize(size),
			SpanPages:  pages,
			SpanBlocks: spanBytes / size,
			WasteBytes: spanBytes % size,
		}
	}
	return out
}

// PrintClasses prints the size-class table.
func (p *Printer) PrintClasses() error {
	classes := Classes()
	if p.opts.Format == FormatJSON {
		return p.printJSON(classes)
	}
	return p.printClassesText(classes)
}
