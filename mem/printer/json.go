package printer

import (
	"encoding/json"

	"github.com/joshuapare/spanalloc/internal/sizeclass"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// jsonHeap is the JSON form of a heap snapshot. Bucket slices are replaced
// by full tables when ShowEmpty is set.
type jsonHeap struct {
	Page    types.PageCacheStats `json:"page"`
	Central types.CentralStats   `json:"central"`
}

func (p *Printer) heapJSON(st types.HeapStats) jsonHeap {
	out := jsonHeap{Page: st.Page, Central: st.Central}
	if !p.opts.ShowEmpty {
		return out
	}

	pages := make([]types.PageBucket, 0, sizeclass.MaxPages)
	have := make(map[int]int, len(st.Page.Buckets))
	for _, b := range st.Page.Buckets {
		have[b.Pages] = b.Spans
	}
	for n := 1; n <= sizeclass.MaxPages; n++ {
		pages = append(pages, types.PageBucket{Pages: n, Spans: have[n]})
	}
	out.Page.Buckets = pages

	classes := make([]types.ClassBucket, sizeclass.NumClasses)
	for idx := range classes {
		classes[idx] = types.ClassBucket{Class: idx, Size: sizeclass.Size(idx)}
	}
	for _, b := range st.Central.Buckets {
		classes[b.Class] = b
	}
	out.Central.Buckets = classes
	return out
}

// printJSON writes v as indented JSON followed by a newline.
func (p *Printer) printJSON(v any) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
