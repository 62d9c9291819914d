// Package live renders the in-run dashboard.
package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bookload/internal/runner"
	"bookload/internal/tui/components"
	"bookload/internal/tui/styles"
)

type Model struct {
	Stats    runner.StatsSnapshot
	Progress progress.Model

	Journeys table.Model
	Steps    table.Model

	IterLine    components.Sparkline
	LatencyLine components.Sparkline

	LastUpdate time.Time
	LastIters  uint64

	Width  int
	Height int
}

func NewModel() Model {
	return Model{
		Progress:    progress.New(progress.WithDefaultGradient()),
		Journeys:    newTable(journeyColumns, 4),
		Steps:       newTable(stepColumns, 4),
		IterLine:    components.NewSparkline(40, "Iterations/s", styles.Active),
		LatencyLine: components.NewSparkline(40, "Slowest step P90 (ms)", styles.Warn),
		LastUpdate:  time.Now(),
	}
}

var journeyColumns = []table.Column{
	{Title: "Journey", Width: 10},
	{Title: "State", Width: 9},
	{Title: "Rate", Width: 8},
	{Title: "Active", Width: 7},
	{Title: "Peak", Width: 6},
	{Title: "Started", Width: 9},
	{Title: "Dropped", Width: 8},
}

var stepColumns = []table.Column{
	{Title: "Step", Width: 10},
	{Title: "Count", Width: 9},
	{Title: "P50 ms", Width: 9},
	{Title: "P90 ms", Width: 9},
	{Title: "P99 ms", Width: 9},
	{Title: "Max ms", Width: 9},
}

func newTable(cols []table.Column, height int) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	// Nothing is selectable here.
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)
	return t
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.StatsSnapshot:
		now := time.Now()
		dt := now.Sub(m.LastUpdate).Seconds()
		if dt < 0.01 {
			dt = 0.01
		}

		var delta uint64
		if msg.Live.Iterations >= m.LastIters {
			delta = msg.Live.Iterations - m.LastIters
		}
		m.IterLine.Add(uint64(float64(delta) / dt))

		var worst float64
		for _, st := range msg.Live.Steps {
			worst = max(worst, st.P90Ms)
		}
		m.LatencyLine.Add(uint64(worst))

		m.Stats = msg
		m.LastIters = msg.Live.Iterations
		m.LastUpdate = now
		m.Journeys.SetRows(journeyRows(msg.Journeys))
		m.Steps.SetRows(stepRows(msg))

		cmd := m.Progress.SetPercent(progressOf(msg))
		return m, cmd

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 6
		if half < 10 {
			half = 10
		}
		m.IterLine.Resize(half)
		m.LatencyLine.Resize(half)
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func progressOf(s runner.StatsSnapshot) float64 {
	if s.Total <= 0 {
		return 0
	}
	return min(float64(s.Elapsed)/float64(s.Total), 1.0)
}

func journeyRows(js []runner.Status) []table.Row {
	rows := make([]table.Row, 0, len(js))
	for _, j := range js {
		rows = append(rows, table.Row{
			j.Journey,
			j.State.String(),
			fmt.Sprintf("%.1f", j.Rate),
			fmt.Sprintf("%d", j.Active),
			fmt.Sprintf("%d", j.Peak),
			fmt.Sprintf("%d", j.Started),
			fmt.Sprintf("%d", j.Dropped),
		})
	}
	return rows
}

func stepRows(s runner.StatsSnapshot) []table.Row {
	rows := make([]table.Row, 0, len(s.Live.Steps))
	for _, st := range s.Live.Steps {
		rows = append(rows, table.Row{
			st.Step,
			fmt.Sprintf("%d", st.Count),
			fmt.Sprintf("%.1f", st.P50Ms),
			fmt.Sprintf("%.1f", st.P90Ms),
			fmt.Sprintf("%.1f", st.P99Ms),
			fmt.Sprintf("%.1f", st.MaxMs),
		})
	}
	return rows
}

func (m Model) View() string {
	s := strings.Builder{}
	l := m.Stats.Live

	// Top Grid: Metrics
	errRate := l.ErrorRate()

	col1 := fmt.Sprintf("REQ: %d\nACT: %d", l.Requests, m.Stats.Active())
	col2 := fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", errRate, l.RequestsFailed)
	col3 := fmt.Sprintf("ITER: %d\nOK:   %d", l.Iterations, l.IterationsOK)

	lagStyle := styles.Active
	if l.AvgLagMs > 2.0 {
		lagStyle = styles.Warn
	}
	if l.AvgLagMs > 10.0 {
		lagStyle = styles.Error
	}
	dropStyle := styles.Active
	if l.Dropped > 0 {
		dropStyle = styles.Warn
	}
	col4 := fmt.Sprintf(
		"LAG:  %s\nDROP: %s",
		lagStyle.Render(fmt.Sprintf("%.2f ms", l.AvgLagMs)),
		dropStyle.Render(fmt.Sprintf("%d", l.Dropped)),
	)

	grid := lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(styles.RateStyle(errRate).Render(col2)),
		styles.Box.Render(col3),
		styles.Box.Render(col4),
	)
	s.WriteString(grid)
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.IterLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.Journeys.View()),
		styles.Box.Render(m.Steps.View()),
	))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("%s / %s",
		m.Stats.Elapsed.Round(time.Second), m.Stats.Total)))

	return s.String()
}
