package live

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookload/internal/runner"
	"bookload/internal/stats"
)

func snapshot(iters uint64) runner.StatsSnapshot {
	return runner.StatsSnapshot{
		Elapsed: 30 * time.Second,
		Total:   time.Minute,
		Live: stats.Live{
			Requests:       300,
			RequestsFailed: 3,
			Iterations:     iters,
			IterationsOK:   iters,
			Steps: []stats.StepLatency{
				{Step: "reserve", Count: 100, P90Ms: 120},
				{Step: "confirm", Count: 100, P90Ms: 340},
			},
		},
		Journeys: []runner.Status{
			{Journey: "journey1", State: runner.StateSteady, Rate: 600, Active: 12, Started: 90},
			{Journey: "journey2", State: runner.StateRamping, Rate: 150.5, Active: 3, Dropped: 2},
		},
	}
}

func TestUpdate_Snapshot(t *testing.T) {
	m := NewModel()
	m, _ = m.Update(snapshot(100))

	assert.Equal(t, uint64(100), m.LastIters)
	assert.Equal(t, uint64(340), m.LatencyLine.Last())
	require.Len(t, m.Journeys.Rows(), 2)
	assert.Equal(t, "journey1", m.Journeys.Rows()[0][0])
	assert.Equal(t, "steady", m.Journeys.Rows()[0][1])
	assert.Equal(t, "150.5", m.Journeys.Rows()[1][2])
	assert.Equal(t, "2", m.Journeys.Rows()[1][6])
	require.Len(t, m.Steps.Rows(), 2)
	assert.Equal(t, "340.0", m.Steps.Rows()[1][3])

	view := m.View()
	assert.Contains(t, view, "REQ: 300")
	assert.Contains(t, view, "ACT: 15")
	assert.Contains(t, view, "ERR: 1.00%")
	assert.Contains(t, view, "30s / 1m0s")
}

func TestUpdate_IterationCounterReset(t *testing.T) {
	m := NewModel()
	m, _ = m.Update(snapshot(100))
	m, _ = m.Update(snapshot(10))
	assert.Equal(t, uint64(0), m.IterLine.Last())
}

func TestUpdate_WindowSize(t *testing.T) {
	m := NewModel()
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	assert.Equal(t, 96, m.Progress.Width)
	assert.Equal(t, 44, m.IterLine.Width)

	m, _ = m.Update(tea.WindowSizeMsg{Width: 20, Height: 10})
	assert.Equal(t, 10, m.LatencyLine.Width)
}

func TestProgressOf(t *testing.T) {
	assert.Zero(t, progressOf(runner.StatsSnapshot{}))
	assert.InDelta(t, 0.5, progressOf(runner.StatsSnapshot{Elapsed: time.Second, Total: 2 * time.Second}), 1e-9)
	assert.Equal(t, 1.0, progressOf(runner.StatsSnapshot{Elapsed: 3 * time.Second, Total: 2 * time.Second}))
}
