package main

import (
	"encoding/json"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/spanalloc/pkg/types"
)

// TestHelpToggle tests toggling help overlay with '?'
func TestHelpToggle(t *testing.T) {
	helper := NewTestHelper(t).SendWindowSize(120, 40)
	require.False(t, helper.GetModel().showHelp, "help should not be shown initially")

	helper.SendKeyRune('?')
	require.True(t, helper.GetModel().showHelp)
	require.Contains(t, helper.GetModel().View(), "Keyboard Shortcuts")

	helper.SendKeyRune('?')
	require.False(t, helper.GetModel().showHelp)
}

// TestHelpDismissWithEsc tests dismissing help with Esc
func TestHelpDismissWithEsc(t *testing.T) {
	helper := NewTestHelper(t).SendWindowSize(120, 40)

	helper.SendKeyRune('?')
	require.True(t, helper.GetModel().showHelp)

	// Other keys are swallowed while help is up
	helper.SendKey(tea.KeyTab)
	require.Equal(t, HeapView, helper.GetModel().view)

	helper.SendKey(tea.KeyEsc)
	require.False(t, helper.GetModel().showHelp)
}

func TestQuit(t *testing.T) {
	helper := NewTestHelper(t)
	cmd := helper.SendKeyRune('q')
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTabSwitchesView(t *testing.T) {
	helper := NewTestHelper(t).SendWindowSize(120, 40)
	require.Contains(t, helper.GetModel().View(), "Page cache")

	helper.SendKey(tea.KeyTab)
	model := helper.GetModel()
	require.Equal(t, ClassesView, model.view)
	require.Contains(t, model.View(), "BLOCKS")

	helper.SendKey(tea.KeyTab)
	require.Equal(t, HeapView, helper.GetModel().view)
}

func TestRefreshShowsWorkloadTraffic(t *testing.T) {
	helper := NewTestHelper(t).SendWindowSize(160, 50)
	helper.workload.Start()
	helper.WaitForAllocs(t, 1000)

	helper.Refresh()
	model := helper.GetModel()
	require.Positive(t, model.stats.Page.Chunks)
	require.Positive(t, model.stats.Central.SpansFetched)

	view := model.View()
	require.Contains(t, view, "running")
	require.Contains(t, view, "Spans fetched")
}

func TestPauseToggle(t *testing.T) {
	helper := NewTestHelper(t).SendWindowSize(120, 40)

	helper.SendKeyRune('p')
	require.True(t, helper.workload.Paused())
	require.Equal(t, "Workload paused", helper.GetModel().statusMessage)
	require.Contains(t, helper.GetModel().View(), "paused")

	helper.SendKeyRune('p')
	require.False(t, helper.workload.Paused())
	require.Equal(t, "Workload resumed", helper.GetModel().statusMessage)

	helper.Send(clearStatusMsg{})
	require.Empty(t, helper.GetModel().statusMessage)
}

func TestScavengeKey(t *testing.T) {
	helper := NewTestHelper(t).SendWindowSize(120, 40)

	// Give the heap some free pages
	c := helper.heap.NewCache()
	c.Free(c.Allocate(64 << 10))
	c.Close()

	cmd := helper.SendKeyRune('s')
	require.Equal(t, "Scavenging...", helper.GetModel().statusMessage)
	require.NotNil(t, cmd)

	msg := cmd()
	require.IsType(t, scavengeDoneMsg{}, msg)
	helper.Send(msg)
	require.Equal(t, "Free pages returned to the OS", helper.GetModel().statusMessage)

	helper.Refresh()
	require.Equal(t, 1, helper.GetModel().stats.Page.Scavenges)
	require.Positive(t, helper.GetModel().stats.Page.ReleasedPages)
}

func TestScavengeFailureShowsError(t *testing.T) {
	helper := NewTestHelper(t)
	helper.Send(scavengeDoneMsg{err: errors.New("madvise: boom")})
	require.Equal(t, "Scavenge failed: madvise: boom", helper.GetModel().statusMessage)
}

func TestCopyStats(t *testing.T) {
	helper := NewTestHelper(t).SendWindowSize(120, 40)
	c := helper.heap.NewCache()
	p := c.Allocate(100)
	helper.Refresh()

	helper.SendKeyRune('c')
	require.Equal(t, "Stats copied to clipboard", helper.GetModel().statusMessage)
	require.Len(t, helper.copied, 1)

	var got types.HeapStats
	require.NoError(t, json.Unmarshal([]byte(helper.copied[0]), &got))
	require.Equal(t, helper.GetModel().stats, got)

	c.Free(p)
	c.Close()
}

func TestCopyStatsFailure(t *testing.T) {
	helper := NewTestHelper(t)
	helper.model.copyFn = func(string) error { return errors.New("no clipboard") }

	helper.SendKeyRune('c')
	require.Equal(t, "Failed to copy stats", helper.GetModel().statusMessage)
}

func TestShowEmptyBuckets(t *testing.T) {
	helper := NewTestHelper(t).SendWindowSize(120, 40)
	before := helper.GetModel().viewport.TotalLineCount()

	helper.SendKeyRune('e')
	require.True(t, helper.GetModel().showEmpty)
	require.Greater(t, helper.GetModel().viewport.TotalLineCount(), before+128)

	// Every page bucket is listed now, so the pane scrolls
	helper.SendKey(tea.KeyEnd)
	require.False(t, helper.GetModel().viewport.AtTop())
}

func TestWorkloadStopFreesEverything(t *testing.T) {
	helper := NewTestHelper(t)
	helper.workload.Start()
	helper.WaitForAllocs(t, 500)
	helper.workload.Stop()
	helper.workload.Stop()

	allocs, frees, live := helper.workload.Counters()
	require.Equal(t, allocs, frees)
	require.Zero(t, live)

	st := helper.heap.Stats()
	require.Empty(t, st.Central.Buckets)
	require.Zero(t, st.Page.LargeSpans)
	require.Equal(t, st.Page.Chunks*128, st.Page.FreePages)
}
