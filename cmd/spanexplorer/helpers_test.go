package main

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/spanalloc/pkg/spanalloc"
)

// TestHelper provides utilities for testing TUI components
type TestHelper struct {
	model    Model
	heap     *spanalloc.Heap
	workload *Workload
	copied   []string
}

// NewTestHelper creates a test helper over a fresh heap with a stopped,
// paused workload. Call Start on the workload to generate traffic.
func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()
	heap, err := spanalloc.New(nil)
	require.NoError(t, err)

	opts := DefaultWorkloadOptions()
	opts.Workers = 2
	opts.MaxLive = 64
	workload := NewWorkload(heap, opts)

	h := &TestHelper{heap: heap, workload: workload}
	h.model = NewModel(heap, workload)
	h.model.copyFn = func(s string) error {
		h.copied = append(h.copied, s)
		return nil
	}
	t.Cleanup(func() {
		workload.Stop()
		require.NoError(t, heap.Close())
	})
	return h
}

// Send runs a message through Update and returns the command it produced
func (h *TestHelper) Send(msg tea.Msg) tea.Cmd {
	updated, cmd := h.model.Update(msg)
	h.model = updated.(Model)
	return cmd
}

// SendKey simulates a key press but does not execute async commands
func (h *TestHelper) SendKey(keyType tea.KeyType) tea.Cmd {
	return h.Send(tea.KeyMsg{Type: keyType})
}

// SendKeyRune simulates a character key press
func (h *TestHelper) SendKeyRune(r rune) tea.Cmd {
	return h.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
}

// SendWindowSize simulates a window resize
func (h *TestHelper) SendWindowSize(width, height int) *TestHelper {
	h.Send(tea.WindowSizeMsg{Width: width, Height: height})
	return h
}

// Refresh samples the heap the way a tick would
func (h *TestHelper) Refresh() *TestHelper {
	h.Send(h.model.snapshot()())
	return h
}

// WaitForAllocs waits until the workload has made at least n allocations
func (h *TestHelper) WaitForAllocs(t *testing.T, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		allocs, _, _ := h.workload.Counters()
		return allocs >= n
	}, 5*time.Second, 5*time.Millisecond)
}

// GetModel returns the current model state
func (h *TestHelper) GetModel() Model {
	return h.model
}
