package main

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/joshuapare/spanalloc/internal/logger"
	"github.com/joshuapare/spanalloc/pkg/spanalloc"
	"github.com/joshuapare/spanalloc/pkg/types"
)

var (
	stressWorkers    int
	stressOps        int
	stressMaxSize    int
	stressLargeEvery int
	stressSeed       int64
	stressScavenge   bool
	stressThreshold  int
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVarP(&stressWorkers, "workers", "w", 4, "Number of concurrent workers, each with its own cache")
	cmd.Flags().IntVarP(&stressOps, "ops", "n", 100000, "Allocate/free operations per worker")
	cmd.Flags().IntVar(&stressMaxSize, "max-size", 8192, "Largest small request in bytes")
	cmd.Flags().IntVar(&stressLargeEvery, "large-every", 1000, "Make every Nth request oversize (0 disables)")
	cmd.Flags().Int64Var(&stressSeed, "seed", 1, "Random seed; worker i uses seed+i")
	cmd.Flags().BoolVar(&stressScavenge, "scavenge", false, "Return free pages to the OS before printing stats")
	cmd.Flags().IntVar(&stressThreshold, "threshold", 0, "Free pages above which frees trigger a scavenge (0 disables)")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Run a concurrent allocation workload and verify every block",
		Long: `The stress command starts a number of workers that allocate and free
blocks of random sizes against one heap. Each block is stamped with a
per-worker canary at its first and last byte and checked before it is freed.
A fifth of the frees are handed to another worker to exercise cross-cache
frees. When all workers finish, the heap statistics are printed.

Example:
  spanctl stress
  spanctl stress --workers 16 --ops 1000000 --max-size 65536
  spanctl stress --scavenge --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
}

// stressResult summarizes a stress run.
type stressResult struct {
	Workers     int             `json:"workers"`
	Allocs      int64           `json:"allocs"`
	Frees       int64           `json:"frees"`
	Oversize    int64           `json:"oversize"`
	Corrupted   int64           `json:"corrupted"`
	Elapsed     time.Duration   `json:"elapsed_ns"`
	Heap        types.HeapStats `json:"heap"`
	Scavenged   bool            `json:"scavenged"`
	AllReturned bool            `json:"all_returned"`
}

func runStress() error {
	if stressWorkers < 1 {
		return fmt.Errorf("--workers must be at least 1, got %d", stressWorkers)
	}
	if stressMaxSize < 1 {
		return fmt.Errorf("--max-size must be at least 1, got %d", stressMaxSize)
	}

	opts := spanalloc.DefaultOptions()
	opts.Logger = logger.L
	opts.ScavengeThreshold = stressThreshold
	heap, err := spanalloc.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create heap: %w", err)
	}
	defer heap.Close()

	printVerbose("Running %d workers x %d ops (max size %d)\n", stressWorkers, stressOps, stressMaxSize)

	res := stress(heap)

	if stressScavenge {
		if err := heap.Scavenge(); err != nil {
			return fmt.Errorf("scavenge failed: %w", err)
		}
		res.Scavenged = true
	}
	st := heap.Stats()
	res.AllReturned = len(st.Central.Buckets) == 0 && st.Page.LargeSpans == 0

	if jsonOut {
		res.Heap = st
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printInfo("\nStress run\n")
		printInfo("  Workers:    %d\n", res.Workers)
		printInfo("  Allocs:     %d (%d oversize)\n", res.Allocs, res.Oversize)
		printInfo("  Frees:      %d\n", res.Frees)
		printInfo("  Corrupted:  %d\n", res.Corrupted)
		printInfo("  Elapsed:    %s\n\n", res.Elapsed)
		if !quiet {
			if err := newPrinter().PrintHeap(st); err != nil {
				return err
			}
		}
	}

	if res.Corrupted > 0 {
		return fmt.Errorf("%d blocks failed canary verification", res.Corrupted)
	}
	if !res.AllReturned {
		return fmt.Errorf("blocks still outstanding after all caches closed")
	}
	return nil
}

// stress runs the workload and returns once every cache has been closed.
func stress(heap *spanalloc.Heap) stressResult {
	var allocs, frees, oversize, corrupted atomic.Int64

	handoff := make(chan unsafe.Pointer, 256)
	var producers, consumer sync.WaitGroup

	consumer.Add(1)
	go func() {
		defer consumer.Done()
		c := heap.NewCache()
		defer c.Close()
		for p := range handoff {
			c.Free(p)
			frees.Add(1)
		}
	}()

	start := time.Now()
	for w := range stressWorkers {
		producers.Add(1)
		go func(w int) {
			defer producers.Done()
			c := heap.NewCache()
			defer c.Close()

			rng := rand.New(rand.NewSource(stressSeed + int64(w)))
			canary := byte(0x80 | w&0x7F)
			var live []block

			release := func(j int) {
				b := live[j]
				if !b.intact(canary) {
					corrupted.Add(1)
				}
				live[j] = live[len(live)-1]
				live = live[:len(live)-1]
				if rng.Intn(5) == 0 {
					handoff <- b.p
					return
				}
				c.Free(b.p)
				frees.Add(1)
			}

			for i := range stressOps {
				if len(live) > 0 && rng.Intn(2) == 0 {
					release(rng.Intn(len(live)))
					continue
				}
				size := 1 + rng.Intn(stressMaxSize)
				if stressLargeEvery > 0 && i%stressLargeEvery == stressLargeEvery-1 {
					size = spanalloc.MaxBytes + 1 + rng.Intn(spanalloc.MaxBytes)
					oversize.Add(1)
				}
				b := block{p: c.Allocate(size), size: size}
				b.stamp(canary)
				live = append(live, b)
				allocs.Add(1)
			}
			for len(live) > 0 {
				release(len(live) - 1)
			}
		}(w)
	}

	producers.Wait()
	close(handoff)
	consumer.Wait()

	return stressResult{
		Workers:   stressWorkers,
		Allocs:    allocs.Load(),
		Frees:     frees.Load(),
		Oversize:  oversize.Load(),
		Corrupted: corrupted.Load(),
		Elapsed:   time.Since(start),
	}
}

type block struct {
	p    unsafe.Pointer
	size int
}

func (b block) bytes() []byte { return unsafe.Slice((*byte)(b.p), b.size) }

func (b block) stamp(v byte) {
	buf := b.bytes()
	buf[0], buf[len(buf)-1] = v, v
}

func (b block) intact(v byte) bool {
	buf := b.bytes()
	return buf[0] == v && buf[len(buf)-1] == v
}
