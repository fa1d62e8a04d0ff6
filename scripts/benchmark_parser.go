package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BenchmarkResult represents a parsed benchmark result.
type BenchmarkResult struct {
	Name        string
	Impl        string // "Cache" (spanalloc) or "GoHeap"
	Workload    string
	Procs       int
	Iterations  int
	NsPerOp     float64
	BytesPerOp  int64
	AllocsPerOp int64
}

// ComparisonResult pairs a spanalloc benchmark with its Go heap twin.
type ComparisonResult struct {
	Workload      string
	Procs         int
	SpanNs        float64
	GoNs          float64
	Speedup       float64
	SpanAllocs    int64
	GoAllocs      int64
	SpanallocOnly bool
}

var (
	inputFile = flag.String(
		"input",
		"",
		"Input file with benchmark output (stdin if not specified)",
	)
	outputFile = flag.String("output", "", "Output markdown file (stdout if not specified)")
	quiet      = flag.Bool("quiet", false, "Suppress progress output")
)

func main() {
	flag.Parse()

	// Read benchmark output
	var in io.Reader = os.Stdin
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	results := parseBenchmarks(bufio.NewScanner(in))
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Parsed %d benchmark results\n", len(results))
	}

	comparisons := generateComparisons(results)
	report := generateMarkdownReport(comparisons, time.Now())

	if *outputFile == "" {
		fmt.Fprint(os.Stdout, report)
		return
	}
	if err := os.WriteFile(*outputFile, []byte(report), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
		os.Exit(1)
	}
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", *outputFile)
	}
}

// Benchmark_Cache_SmallRoundsParallel-8    1234    98765 ns/op    0 B/op    0 allocs/op
var benchmarkRegex = regexp.MustCompile(
	`^Benchmark_(\w+?)_(\w+?)(?:-(\d+))?\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+(\d+)\s+B/op)?(?:\s+(\d+)\s+allocs/op)?`,
)

func parseBenchmarks(scanner *bufio.Scanner) []BenchmarkResult {
	var results []BenchmarkResult

	for scanner.Scan() {
		line := scanner.Text()

		// Try to parse as JSON (from -json flag)
		var testEvent map[string]any
		if err := json.Unmarshal([]byte(line), &testEvent); err == nil {
			if output, ok := testEvent["Output"].(string); ok {
				line = output
			}
		}

		matches := benchmarkRegex.FindStringSubmatch(strings.TrimSpace(line))
		if matches == nil {
			continue
		}

		r := BenchmarkResult{
			Name:     strings.Fields(strings.TrimSpace(line))[0],
			Impl:     matches[1],
			Workload: matches[2],
			Procs:    1,
		}
		if matches[3] != "" {
			r.Procs, _ = strconv.Atoi(matches[3])
		}
		r.Iterations, _ = strconv.Atoi(matches[4])
		r.NsPerOp, _ = strconv.ParseFloat(matches[5], 64)
		if matches[6] != "" {
			r.BytesPerOp, _ = strconv.ParseInt(matches[6], 10, 64)
		}
		if matches[7] != "" {
			r.AllocsPerOp, _ = strconv.ParseInt(matches[7], 10, 64)
		}
		results = append(results, r)
	}

	return results
}

func generateComparisons(results []BenchmarkResult) []ComparisonResult {
	// Group results by workload and GOMAXPROCS
	type key struct {
		workload string
		procs    int
	}

	grouped := make(map[key]map[string]BenchmarkResult)
	for _, result := range results {
		k := key{result.Workload, result.Procs}
		if grouped[k] == nil {
			grouped[k] = make(map[string]BenchmarkResult)
		}
		grouped[k][result.Impl] = result
	}

	var comparisons []ComparisonResult
	for k, impls := range grouped {
		span, hasSpan := impls["Cache"]
		if !hasSpan {
			continue
		}
		comp := ComparisonResult{
			Workload:   k.workload,
			Procs:      k.procs,
			SpanNs:     span.NsPerOp,
			SpanAllocs: span.AllocsPerOp,
		}
		if goheap, ok := impls["GoHeap"]; ok && span.NsPerOp > 0 {
			comp.GoNs = goheap.NsPerOp
			comp.GoAllocs = goheap.AllocsPerOp
			comp.Speedup = goheap.NsPerOp / span.NsPerOp
		} else {
			comp.SpanallocOnly = true
		}
		comparisons = append(comparisons, comp)
	}

	sort.Slice(comparisons, func(i, j int) bool {
		if comparisons[i].Workload != comparisons[j].Workload {
			return comparisons[i].Workload < comparisons[j].Workload
		}
		return comparisons[i].Procs < comparisons[j].Procs
	})

	return comparisons
}

func generateMarkdownReport(comparisons []ComparisonResult, now time.Time) string {
	var sb strings.Builder

	sb.WriteString("# Benchmark Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format("2006-01-02 15:04:05")))

	faster, slower, comparable := 0, 0, 0
	totalSpeedup := 0.0
	for _, comp := range comparisons {
		if comp.SpanallocOnly {
			continue
		}
		comparable++
		totalSpeedup += comp.Speedup
		if comp.Speedup > 1.0 {
			faster++
		} else if comp.Speedup < 1.0 {
			slower++
		}
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Workloads**: %d\n", len(comparisons)))
	sb.WriteString(fmt.Sprintf("- **Compared with the Go heap**: %d\n", comparable))
	if comparable > 0 {
		sb.WriteString(fmt.Sprintf("  - spanalloc faster: %d\n", faster))
		sb.WriteString(fmt.Sprintf("  - Go heap faster: %d\n", slower))
		sb.WriteString(fmt.Sprintf("  - Average speedup: **%.2fx**\n", totalSpeedup/float64(comparable)))
	}
	sb.WriteString("\n")

	sb.WriteString("## Detailed Results\n\n")
	sb.WriteString("| Workload | Procs | spanalloc (ns/op) | Go heap (ns/op) | Speedup | Go allocs/op |\n")
	sb.WriteString("|----------|-------|-------------------|-----------------|---------|--------------|\n")
	for _, comp := range comparisons {
		if comp.SpanallocOnly {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | *N/A* | *spanalloc only* | *N/A* |\n",
				comp.Workload, comp.Procs, formatNumber(comp.SpanNs)))
			continue
		}
		indicator := "✓"
		if comp.Speedup < 1.0 {
			indicator = "✗"
		}
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %.2fx %s | %s |\n",
			comp.Workload,
			comp.Procs,
			formatNumber(comp.SpanNs),
			formatNumber(comp.GoNs),
			comp.Speedup,
			indicator,
			formatNumber(float64(comp.GoAllocs)),
		))
	}
	sb.WriteString("\n")

	sb.WriteString("## Notes\n\n")
	sb.WriteString("- **Speedup > 1.0**: spanalloc is faster ✓\n")
	sb.WriteString("- **Speedup < 1.0**: the Go heap is faster ✗\n")
	sb.WriteString("- **Go allocs/op**: garbage-collected allocations the Go heap made for the same work\n")

	return sb.String()
}

func formatNumber(n float64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.2fM", n/1000000)
	} else if n >= 1000 {
		return fmt.Sprintf("%.1fK", n/1000)
	}
	return fmt.Sprintf("%.0f", n)
}
