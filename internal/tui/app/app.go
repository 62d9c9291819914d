package app

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bookload/internal/runner"
	"bookload/internal/storage"
	"bookload/internal/tui/live"
	"bookload/internal/tui/result"
	"bookload/internal/tui/styles"
)

type StatsMsg runner.StatsSnapshot

// DoneMsg carries the finished run, or the error that ended it.
type DoneMsg struct {
	Item storage.HistoryItem
	Err  error
}

type Model struct {
	Updates runner.StatsUpdateChan
	Done    <-chan DoneMsg
	Cancel  context.CancelFunc

	Live   live.Model
	Result *result.Model
	Err    error

	// Stopping is set once the user asked to end the run early.
	Stopping bool

	// Layout
	Width  int
	Height int
}

func NewModel(updates runner.StatsUpdateChan, done <-chan DoneMsg, cancel context.CancelFunc) Model {
	return Model{
		Updates: updates,
		Done:    done,
		Cancel:  cancel,
		Live:    live.NewModel(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.Updates),
		waitForDone(m.Done),
	)
}

func waitForUpdate(sub runner.StatsUpdateChan) tea.Cmd {
	return func() tea.Msg {
		return StatsMsg(<-sub)
	}
}

func waitForDone(done <-chan DoneMsg) tea.Cmd {
	return func() tea.Msg {
		return <-done
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.Result != nil || m.Err != nil || m.Stopping {
				return m, tea.Quit
			}
			m.Stopping = true
			if m.Cancel != nil {
				m.Cancel()
			}
			return m, nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if m.Result != nil {
			r, _ := m.Result.Update(msg)
			m.Result = &r
		}
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, cmd

	case StatsMsg:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(runner.StatsSnapshot(msg))
		return m, tea.Batch(cmd, waitForUpdate(m.Updates))

	case DoneMsg:
		if msg.Err != nil {
			m.Err = msg.Err
			return m, tea.Quit
		}
		r := result.NewModel(msg.Item)
		r.Width, r.Height = m.Width, m.Height
		m.Result = &r
		return m, nil
	}

	// Forward everything else (progress frames) to the dashboard.
	var cmd tea.Cmd
	m.Live, cmd = m.Live.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Err != nil {
		return styles.Error.Render("run failed: "+m.Err.Error()) + "\n"
	}
	if m.Result != nil {
		return m.Result.View() + "\n"
	}

	header := styles.Title.Render("🚀 bookload")
	if m.Stopping {
		header += "  " + styles.Warn.Render("stopping, draining in-flight journeys...")
	}

	keys := []string{
		styles.RenderKey("q", "Stop"),
		styles.RenderKey("Ctrl+C", "Stop"),
	}
	footer := styles.FooterBase.Render(strings.Join(keys, "   "))

	return lipgloss.JoinVertical(lipgloss.Left, header, "", m.Live.View(), "", footer)
}
