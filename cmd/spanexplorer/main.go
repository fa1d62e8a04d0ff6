// Command spanexplorer runs a background allocation workload against a
// spanalloc heap and shows its page cache, central cache and size classes
// live in the terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/joshuapare/spanalloc/internal/logger"
	"github.com/joshuapare/spanalloc/pkg/spanalloc"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	wl := DefaultWorkloadOptions()
	var (
		debugMode   bool
		showVersion bool
		threshold   int
		refresh     time.Duration
	)

	flags := pflag.NewFlagSet("spanexplorer", pflag.ExitOnError)
	flags.BoolVarP(&debugMode, "debug", "d", false, "Write debug logs to a file in the temp directory")
	flags.BoolVarP(&showVersion, "version", "v", false, "Print version information")
	flags.IntVarP(&wl.Workers, "workers", "w", wl.Workers, "Number of workload goroutines")
	flags.IntVar(&wl.MaxSize, "max-size", wl.MaxSize, "Largest small request in bytes")
	flags.IntVar(&wl.MaxLive, "max-live", wl.MaxLive, "Blocks each worker holds at most")
	flags.IntVar(&wl.LargeEvery, "large-every", wl.LargeEvery, "Make every Nth request oversize (0 disables)")
	flags.Int64Var(&wl.Seed, "seed", wl.Seed, "Random seed; worker i uses seed+i")
	flags.IntVar(&threshold, "threshold", 0, "Free pages above which frees trigger a scavenge (0 disables)")
	flags.DurationVar(&refresh, "refresh", DefaultRefresh, "How often the heap is sampled")
	flags.Parse(os.Args[1:])

	if showVersion {
		fmt.Printf("spanexplorer %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built: %s\n", date)
		os.Exit(0)
	}

	// The TUI owns the terminal, so debug logs go to a file
	if debugMode {
		path := filepath.Join(os.TempDir(), "spanexplorer-"+time.Now().Format("2006-01-02")+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to init logging: %v\n", err)
		} else {
			defer f.Close()
			logger.Init(logger.Options{Enabled: true, Writer: f, Level: slog.LevelDebug, JSON: true})
		}
	}

	opts := spanalloc.DefaultOptions()
	opts.Logger = logger.L
	opts.ScavengeThreshold = threshold
	heap, err := spanalloc.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	workload := NewWorkload(heap, wl)
	workload.Start()

	m := NewModel(heap, workload)
	if refresh > 0 {
		m.refresh = refresh
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, runErr := p.Run()

	// Workers must be gone before the heap unmaps
	workload.Stop()
	allocs, frees, _ := workload.Counters()
	st := heap.Stats()
	if err := heap.Close(); err != nil {
		logger.L.Error("heap close failed", "error", err)
	}

	if runErr != nil {
		logger.L.Error("TUI error", "error", runErr)
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", runErr)
		os.Exit(1)
	}
	fmt.Printf("%d allocations, %d frees, %d OS allocations\n", allocs, frees, st.Page.SystemAllocs)
}
