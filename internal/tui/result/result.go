package result

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bookload/internal/storage"
	"bookload/internal/tui/styles"
)

// Model shows the summary of one finished run.
type Model struct {
	Item storage.HistoryItem
	Hint string

	Width  int
	Height int
}

func NewModel(item storage.HistoryItem) Model {
	return Model{Item: item, Hint: "Press q to quit"}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.1f", float64(d.Microseconds())/1000.0)
}

func (m Model) View() string {
	s := strings.Builder{}
	it := m.Item

	verdict := styles.Success.Render("PASSED")
	if !it.Passed {
		verdict = styles.Error.Render("FAILED")
	}
	if it.Aborted {
		verdict += styles.Warn.Render(" (aborted)")
	}

	s.WriteString(styles.Title.Render("📊 Run " + it.ID))
	s.WriteString("\n\n")

	overview := fmt.Sprintf(
		"Started:  %s\nTarget:   %s\nElapsed:  %s\nVerdict:  %s",
		it.Timestamp.Format(time.RFC822), it.BaseURL, it.Elapsed.Round(time.Millisecond), verdict,
	)
	s.WriteString(styles.Box.Render(overview))
	s.WriteString("\n\n")

	// 1. Journeys
	s.WriteString(styles.Active.Render("Journeys"))
	s.WriteString("\n")
	var jb strings.Builder
	fmt.Fprintf(&jb, "%-10s %8s %8s %8s %8s %8s %8s %10s", "journey", "started", "ok", "failed", "interr", "dropped", "peak", "p95 ms")
	for _, j := range it.Journeys {
		fmt.Fprintf(&jb, "\n%-10s %8d %8d %8d %8d %8d %8d %10s",
			j.Journey, j.Started, j.Succeeded, j.Failed, j.Interrupted, j.Dropped, j.PeakWorkers, ms(j.Duration.P95))
	}
	s.WriteString(styles.Box.Render(jb.String()))
	s.WriteString("\n\n")

	// 2. Steps
	s.WriteString(styles.Active.Render("Steps"))
	s.WriteString("\n")
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-10s %8s %8s %9s %9s %9s %9s", "step", "count", "failed", "med ms", "p90 ms", "p99 ms", "max ms")
	for _, st := range it.Steps {
		fmt.Fprintf(&sb, "\n%-10s %8d %8d %9s %9s %9s %9s",
			st.Step, st.Count, st.Failed, ms(st.Med), ms(st.P90), ms(st.P99), ms(st.Max))
	}
	s.WriteString(styles.Box.Render(sb.String()))
	s.WriteString("\n\n")

	// 3. Thresholds
	s.WriteString(styles.Active.Render("Thresholds"))
	s.WriteString("\n")
	lines := make([]string, 0, len(it.Thresholds))
	for _, t := range it.Thresholds {
		lines = append(lines, fmt.Sprintf("%s %-45s %g", styles.Verdict(t.Passed), t.Rule, t.Value))
	}
	if len(lines) == 0 {
		lines = append(lines, styles.Subtle.Render("none"))
	}
	s.WriteString(styles.Box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))

	if m.Hint != "" {
		s.WriteString("\n\n")
		s.WriteString(styles.Subtle.Render(m.Hint))
	}

	return s.String()
}
