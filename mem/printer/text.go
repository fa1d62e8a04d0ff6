package printer

import (
	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// printHeapText prints a heap snapshot in human-readable text format.
func (p *Printer) printHeapText(st types.HeapStats) error {
	pg := st.Page
	w := p.writer

	p.msg.Fprintf(w, "Page cache\n")
	p.msg.Fprintf(w, "  Chunks:          %d (%d bytes)\n", pg.Chunks, pg.Chunks*sizeclass.MaxPages*sizeclass.PageSize)
	p.msg.Fprintf(w, "  Free pages:      %d (%d bytes)\n", pg.FreePages, pg.FreePages*sizeclass.PageSize)
	p.msg.Fprintf(w, "  Large spans:     %d\n", pg.LargeSpans)
	p.msg.Fprintf(w, "  Spans granted:   %d, returned: %d\n", pg.SpansGranted, pg.SpansReturned)
	p.msg.Fprintf(w, "  Splits:          %d, merges: %d\n", pg.Splits, pg.Merges)
	p.msg.Fprintf(w, "  OS allocs:       %d, frees: %d\n", pg.SystemAllocs, pg.SystemFrees)
	p.msg.Fprintf(w, "  Scavenges:       %d (%d pages released)\n", pg.Scavenges, pg.ReleasedPages)
	p.msg.Fprintf(w, "  Metadata:        %d span records, %d page-map nodes\n", pg.SpanRecords, pg.PageMapNodes)

	have := make(map[int]int, len(pg.Buckets))
	for _, b := range pg.Buckets {
		have[b.Pages] = b.Spans
	}
	p.msg.Fprintf(w, "  %6s %8s\n", "PAGES", "SPANS")
	for n := 1; n <= sizeclass.MaxPages; n++ {
		spans, ok := have[n]
		if !ok && !p.opts.ShowEmpty {
			continue
		}
		p.msg.Fprintf(w, "  %6d %8d\n", n, spans)
	}

	ct := st.Central
	p.msg.Fprintf(w, "\nCentral cache\n")
	p.msg.Fprintf(w, "  Spans fetched:   %d, released: %d\n", ct.SpansFetched, ct.SpansReleased)

	classes := make(map[int]types.ClassBucket, len(ct.Buckets))
	for _, b := range ct.Buckets {
		classes[b.Class] = b
	}
	p.msg.Fprintf(w, "  %5s %8s %6s %10s %10s\n", "CLASS", "SIZE", "SPANS", "LENT", "FREE")
	for idx := range sizeclass.NumClasses {
		b, ok := classes[idx]
		if !ok {
			if !p.opts.ShowEmpty {
				continue
			}
			b = types.ClassBucket{Class: idx, Size: sizeclass.Size(idx)}
		}
		p.msg.Fprintf(w, "  %5d %8d %6d %10d %10d\n", b.Class, b.Size, b.Spans, b.Lent, b.Free)
	}
	return nil
}

// printCacheText prints a per-goroutine cache snapshot.
func (p *Printer) printCacheText(st types.ThreadCacheStats) error {
	w := p.writer
	p.msg.Fprintf(w, "Thread cache\n")
	p.msg.Fprintf(w, "  Refills:         %d, hand-backs: %d\n", st.Fetches, st.Releases)
	p.msg.Fprintf(w, "  %5s %8s %8s %9s\n", "CLASS", "SIZE", "LEN", "MAXBATCH")
	for _, b := range st.Buckets {
		p.msg.Fprintf(w, "  %5d %8d %8d %9d\n", b.Class, b.Size, b.Len, b.MaxBatch)
	}
	return nil
}

// printClassesText prints the size-class table.
func (p *Printer) printClassesText(classes []ClassInfo) error {
	w := p.writer
	p.msg.Fprintf(w, "%5s %8s %6s %6s %7s %7s\n", "CLASS", "SIZE", "BATCH", "PAGES", "BLOCKS", "WASTE")
	for _, c := range classes {
		p.msg.Fprintf(w, "%5d %8d %6d %6d %7d %7d\n",
			c.Class, c.Size, c.MoveBlocks, c.SpanPages, c.SpanBlocks, c.WasteBytes)
	}
	return nil
}
