/*
Package spanalloc is a concurrent, size-classed memory allocator for blocks
that live outside the Go heap.

Memory comes from the operating system in 1 MiB chunks and is managed in
three tiers:

  - a per-goroutine Cache with one free list per size class (no locks),
  - a shared central cache with one locked span list per size class,
  - a shared page cache that splits and merges runs of 8 KiB pages.

Requests up to MaxBytes (256 KiB) are served by the first two tiers.
Larger requests are rounded to whole pages and served by the page cache
directly; requests over 1 MiB are mapped straight from the OS.

# Quick Start

	heap, err := spanalloc.New(nil)
	if err != nil {
	    log.Fatal(err)
	}
	defer heap.Close()

	cache := heap.NewCache()
	defer cache.Close()

	p := cache.Allocate(100)
	// ... use the 100 bytes at p ...
	cache.Free(p)

# Caches and goroutines

A Cache is not safe for concurrent use: give every goroutine its own. Blocks
may be freed through any Cache of the same Heap, so handing a block to
another goroutine is fine. Closing a Cache returns its cached blocks to the
shared tiers.

# Free

Free takes only the pointer; the block size is recovered from the span that
owns it. Freeing nil, an address the heap never handed out, or a pointer
into the middle of a block panics with an error wrapping ErrNilPointer or
ErrUnknownAddress. Double frees are not detected.

# Memory safety

Blocks are raw memory. The Go garbage collector does not scan them, so they
must not hold the only reference to a Go-heap value. The contents of a
freshly allocated block are undefined.

# Configuration

	opts := spanalloc.DefaultOptions()
	opts.ScavengeThreshold = 4096 // pages
	heap, err := spanalloc.New(opts)

Logging goes through log/slog. It is silent by default; set SPANALLOC_LOG to
debug, info, warn or error, or pass Options.Logger.
*/
package spanalloc
