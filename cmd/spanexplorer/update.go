package main

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joshuapare/spanalloc/internal/logger"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshContent()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.snapshot(), m.tick())

	case statsMsg:
		m.stats = msg.stats
		// Keep the scroll position across refreshes
		offset := m.viewport.YOffset
		m.refreshContent()
		m.viewport.SetYOffset(offset)
		return m, nil

	case scavengeDoneMsg:
		if msg.err != nil {
			logger.L.Error("scavenge failed", "error", msg.err)
			m.statusMessage = "Scavenge failed: " + msg.err.Error()
		} else {
			m.statusMessage = "Free pages returned to the OS"
		}
		return m, tea.Batch(m.snapshot(), clearStatusAfter(2*time.Second))

	case clearStatusMsg:
		m.statusMessage = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Help overlay swallows everything except close and quit
	if m.showHelp {
		switch {
		case key.Matches(msg, m.keys.Help), key.Matches(msg, m.keys.Esc):
			m.showHelp = false
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		m.view = (m.view + 1) % 2
		m.refreshContent()
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Empty):
		m.showEmpty = !m.showEmpty
		m.refreshContent()
		return m, nil

	case key.Matches(msg, m.keys.Pause):
		paused := !m.workload.Paused()
		m.workload.SetPaused(paused)
		if paused {
			m.statusMessage = "Workload paused"
		} else {
			m.statusMessage = "Workload resumed"
		}
		return m, clearStatusAfter(2 * time.Second)

	case key.Matches(msg, m.keys.Scavenge):
		m.statusMessage = "Scavenging..."
		return m, m.scavenge()

	case key.Matches(msg, m.keys.Copy):
		m.copyStats()
		return m, clearStatusAfter(2 * time.Second)

	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}
