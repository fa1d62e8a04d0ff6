package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	overlay "github.com/rmhubbert/bubbletea-overlay"
)

// View renders the entire UI
func (m Model) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	// Help is drawn over the live view
	if m.showHelp {
		helpOverlay := overlay.New(
			helpModel{keys: m.keys},
			NewMainViewModel(&m),
			overlay.Center, // horizontal position
			overlay.Center, // vertical position
			0,
			0,
		)
		return helpOverlay.View()
	}

	return m.renderMain()
}

func (m Model) renderMain() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.renderSummary(),
		m.renderContent(),
		m.renderStatus(),
	)
}

// renderHeader renders the title and the view tabs
func (m Model) renderHeader() string {
	tabs := make([]string, 0, 2)
	for _, v := range []View{HeapView, ClassesView} {
		if v == m.view {
			tabs = append(tabs, activeTabStyle.Render(v.String()))
		} else {
			tabs = append(tabs, tabStyle.Render(v.String()))
		}
	}
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		headerStyle.Render("spanalloc explorer"),
		"  ",
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
	)
}

// renderSummary renders the headline counters above the pane
func (m Model) renderSummary() string {
	allocs, frees, live := m.workload.Counters()
	state := runningStyle.Render("running")
	if m.workload.Paused() {
		state = pausedStyle.Render("paused")
	}

	pg, ce := m.stats.Page, m.stats.Central
	lines := []string{
		field("Workload", state) + field("Workers", m.workload.opts.Workers) +
			field("Allocs", allocs) + field("Frees", frees) + field("Live", live),
		field("Chunks", pg.Chunks) + field("Free pages", pg.FreePages) +
			field("Large spans", pg.LargeSpans) + field("OS allocs", pg.SystemAllocs) +
			field("Released pages", pg.ReleasedPages),
		field("Spans fetched", ce.SpansFetched) + field("Spans released", ce.SpansReleased) +
			field("Splits", pg.Splits) + field("Merges", pg.Merges) +
			field("Scavenges", pg.Scavenges),
	}
	return strings.Join(lines, "\n")
}

func field(label string, v any) string {
	return summaryLabelStyle.Render(label+": ") + summaryValueStyle.Render(fmt.Sprint(v)) + "   "
}

// renderContent renders the scrolling pane
func (m Model) renderContent() string {
	return paneStyle.Width(max(m.width-2, 1)).Render(m.viewport.View())
}

// renderStatus renders the status message or the short help
func (m Model) renderStatus() string {
	line := m.statusMessage
	if line == "" {
		line = m.help.View(m.keys)
	}
	return statusStyle.Width(m.width).Render(line)
}

// helpModel is the foreground of the help overlay
type helpModel struct {
	keys KeyMap
}

func (h helpModel) Init() tea.Cmd { return nil }

func (h helpModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) { return h, nil }

func (h helpModel) View() string {
	var b strings.Builder
	b.WriteString(helpTitleStyle.Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	for _, group := range h.keys.FullHelp() {
		for _, binding := range group {
			hk := binding.Help()
			b.WriteString(helpKeyStyle.Render(hk.Key))
			b.WriteString("  ")
			b.WriteString(helpDescStyle.Render(hk.Desc))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(helpDescStyle.Render("Press ? or esc to close"))
	return modalStyle.Render(b.String())
}
