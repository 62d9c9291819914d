package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"bookload/internal/storage"
	"bookload/internal/tui/history"
	"bookload/internal/tui/result"
	"bookload/internal/tui/styles"
)

// PrintHistory lists stored runs, newest first.
func PrintHistory(w io.Writer, items []storage.HistoryItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.Subtle).
		Headers("ID", "TIME", "URL", "ITERATIONS", "FAILED", "RESULT")
	for _, row := range history.Rows(items) {
		t.Row(row...)
	}
	fmt.Fprintln(w, t.Render())
}

// PrintRun prints the stored summary of one run.
func PrintRun(w io.Writer, item storage.HistoryItem) {
	m := result.NewModel(item)
	m.Hint = ""
	fmt.Fprintln(w, m.View())
}
