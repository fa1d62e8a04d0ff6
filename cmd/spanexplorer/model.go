package main

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joshuapare/spanalloc/internal/logger"
	"github.com/joshuapare/spanalloc/mem/printer"
	"github.com/joshuapare/spanalloc/pkg/spanalloc"
	"github.com/joshuapare/spanalloc/pkg/types"
)

// View selects what the main pane shows
type View int

const (
	HeapView View = iota
	ClassesView
)

func (v View) String() string {
	switch v {
	case HeapView:
		return "Heap"
	case ClassesView:
		return "Size classes"
	default:
		return "?"
	}
}

// Layout constants
const (
	HeaderHeight  = 2 // title line plus margin
	SummaryHeight = 3 // workload, page cache, central cache lines
	PaneChrome    = 2 // rounded border top and bottom
	StatusHeight  = 2 // status line plus margin
)

// DefaultRefresh is how often the heap is sampled.
const DefaultRefresh = 500 * time.Millisecond

// Messages
type (
	tickMsg         time.Time
	statsMsg        struct{ stats types.HeapStats }
	scavengeDoneMsg struct{ err error }
	clearStatusMsg  struct{}
)

// Model is the main application model
type Model struct {
	heap     *spanalloc.Heap
	workload *Workload
	keys     KeyMap
	help     help.Model
	viewport viewport.Model

	view      View
	showEmpty bool
	showHelp  bool
	width     int
	height    int
	refresh   time.Duration

	stats types.HeapStats

	// Status message for temporary feedback
	statusMessage string

	// copyFn writes to the system clipboard; replaced in tests
	copyFn func(string) error

	err error
}

// NewModel creates a new TUI model over a running workload
func NewModel(heap *spanalloc.Heap, workload *Workload) Model {
	return Model{
		heap:     heap,
		workload: workload,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		viewport: viewport.New(0, 0),
		view:     HeapView,
		refresh:  DefaultRefresh,
		copyFn:   clipboard.WriteAll,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.snapshot(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) snapshot() tea.Cmd {
	heap := m.heap
	return func() tea.Msg {
		return statsMsg{stats: heap.Stats()}
	}
}

func (m Model) scavenge() tea.Cmd {
	heap := m.heap
	return func() tea.Msg {
		return scavengeDoneMsg{err: heap.Scavenge()}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

// layout sizes the viewport to the window
func (m *Model) layout() {
	m.viewport.Width = max(m.width-4, 1)
	m.viewport.Height = max(m.height-HeaderHeight-SummaryHeight-PaneChrome-StatusHeight, 1)
	m.help.Width = m.width
}

// refreshContent re-renders the current view into the viewport
func (m *Model) refreshContent() {
	var buf bytes.Buffer
	p := printer.New(&buf, printer.Options{ShowEmpty: m.showEmpty})

	var err error
	switch m.view {
	case ClassesView:
		err = p.PrintClasses()
	default:
		err = p.PrintHeap(m.stats)
	}
	if err != nil {
		logger.L.Error("render failed", "view", m.view.String(), "error", err)
		m.err = err
		return
	}
	m.viewport.SetContent(buf.String())
}

// copyStats puts the latest snapshot on the clipboard as JSON
func (m *Model) copyStats() {
	data, err := json.MarshalIndent(m.stats, "", "  ")
	if err == nil {
		err = m.copyFn(string(data))
	}
	if err != nil {
		logger.L.Warn("copy failed", "error", err)
		m.statusMessage = "Failed to copy stats"
		return
	}
	m.statusMessage = "Stats copied to clipboard"
}
