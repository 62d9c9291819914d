// Package history browses stored runs.
package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bookload/internal/storage"
	"bookload/internal/tui/result"
	"bookload/internal/tui/styles"
)

// Model lists runs in a table; enter opens one, esc goes back.
type Model struct {
	Items []storage.HistoryItem
	Table table.Model

	// Detail is non-nil while a run is open.
	Detail *result.Model

	Width  int
	Height int
}

func NewModel(items []storage.HistoryItem) Model {
	columns := []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Time", Width: 20},
		{Title: "URL", Width: 30},
		{Title: "Iterations", Width: 11},
		{Title: "Failed", Width: 8},
		{Title: "Result", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		Items: items,
		Table: t,
	}
	m.Table.SetRows(Rows(items))
	return m
}

// Rows builds one table row per run.
func Rows(items []storage.HistoryItem) []table.Row {
	rows := make([]table.Row, len(items))
	for i, item := range items {
		var iters, failed int
		for _, j := range item.Journeys {
			iters += j.Completed
			failed += j.Failed
		}
		verdict := "pass"
		if !item.Passed {
			verdict = "fail"
		}
		if item.Aborted {
			verdict = "aborted"
		}
		id := item.ID
		if len(id) > 8 {
			id = id[len(id)-8:]
		}
		rows[i] = table.Row{
			id,
			item.Timestamp.Format(time.RFC822),
			item.BaseURL,
			fmt.Sprintf("%d", iters),
			fmt.Sprintf("%d", failed),
			verdict,
		}
	}
	return rows
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			m.Detail = nil
			return m, nil
		case "enter":
			if i := m.Table.Cursor(); m.Detail == nil && i >= 0 && i < len(m.Items) {
				d := result.NewModel(m.Items[i])
				d.Hint = "esc back · q quit"
				m.Detail = &d
			}
			return m, nil
		}
	}

	if m.Detail != nil {
		return m, nil
	}
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Detail != nil {
		return m.Detail.View()
	}
	if len(m.Items) == 0 {
		return styles.Subtle.Render("No runs recorded yet.") + "\n"
	}
	return styles.Box.Render(m.Table.View()) + "\n" +
		styles.RenderKey("↑/↓", "Move") + "   " +
		styles.RenderKey("Enter", "Open") + "   " +
		styles.RenderKey("q", "Quit") + "\n"
}
