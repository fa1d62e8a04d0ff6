package types

// -----------------------------------------------------------------------------
// Statistics snapshots
// -----------------------------------------------------------------------------

// PageBucket describes one non-empty page-count bucket of the page cache.
type PageBucket struct {
	Pages int `json:"pages"` // span length in pages
	Spans int `json:"spans"` // free spans of that length
}

// PageCacheStats is a snapshot of the page-granularity back end.
type PageCacheStats struct {
	Buckets       []PageBucket `json:"buckets,omitempty"`
	FreePages     int          `json:"free_pages"`     // pages sitting in buckets
	Chunks        int          `json:"chunks"`         // OS chunks currently mapped
	SystemAllocs  int          `json:"system_allocs"`  // SystemAlloc calls (chunks and large spans)
	SystemFrees   int          `json:"system_frees"`   // SystemFree calls
	SpansGranted  int          `json:"spans_granted"`  // NewSpan results handed out
	SpansReturned int          `json:"spans_returned"` // spans given back through ReleaseSpan
	Splits        int          `json:"splits"`
	Merges        int          `json:"merges"`
	LargeSpans    int          `json:"large_spans"` // live spans mapped straight from the OS
	Scavenges     int          `json:"scavenges"`
	ReleasedPages int          `json:"released_pages"` // pages handed back to the OS, cumulative
	SpanRecords   int          `json:"span_records"`   // live span records
	PageMapNodes  int          `json:"pagemap_nodes"`
}

// ClassBucket describes one non-empty size-class bucket of the central cache.
type ClassBucket struct {
	Class int `json:"class"`
	Size  int `json:"size"`  // block size in bytes
	Spans int `json:"spans"` // spans sliced for this class
	Lent  int `json:"lent"`  // blocks handed to thread caches
	Free  int `json:"free"`  // blocks still on span free lists
}

// CentralStats is a snapshot of the shared span cache.
type CentralStats struct {
	Buckets       []ClassBucket `json:"buckets,omitempty"`
	SpansFetched  int           `json:"spans_fetched"`  // spans pulled from the page cache
	SpansReleased int           `json:"spans_released"` // fully free spans handed back
}

// ThreadBucket describes one non-empty free list of a thread cache.
type ThreadBucket struct {
	Class    int `json:"class"`
	Size     int `json:"size"`
	Len      int `json:"len"`
	MaxBatch int `json:"max_batch"`
}

// ThreadCacheStats is a snapshot of one thread cache.
type ThreadCacheStats struct {
	Buckets  []ThreadBucket `json:"buckets,omitempty"`
	Fetches  int            `json:"fetches"`  // refills from the central cache
	Releases int            `json:"releases"` // batches handed back to the central cache
}

// HeapStats combines the shared tiers of one heap.
type HeapStats struct {
	Page    PageCacheStats `json:"page"`
	Central CentralStats   `json:"central"`
}
