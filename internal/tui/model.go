// Package tui hosts the interactive terminal front ends: the live run
// dashboard and the history browser.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"bookload/internal/runner"
	"bookload/internal/storage"
	"bookload/internal/tui/app"
	"bookload/internal/tui/history"
)

// Run drives r to completion behind the live dashboard. Quitting the
// dashboard early cancels the run; the partial report is still returned.
func Run(ctx context.Context, r *runner.Runner, baseURL string) (runner.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		rep    runner.Report
		runErr error
	)
	done := make(chan app.DoneMsg, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		rep, runErr = r.Run(ctx)
		done <- app.DoneMsg{Item: storage.FromReport(rep, baseURL), Err: runErr}
	}()

	p := tea.NewProgram(app.NewModel(r.Updates, done, cancel), tea.WithAltScreen())
	_, err := p.Run()

	cancel()
	<-finished
	if err != nil {
		return rep, err
	}
	return rep, runErr
}

// BrowseHistory shows stored runs until the user quits.
func BrowseHistory(items []storage.HistoryItem) error {
	_, err := tea.NewProgram(history.NewModel(items), tea.WithAltScreen()).Run()
	return err
}
