package components

import (
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparkline_ScrollsAndRescales(t *testing.T) {
	s := NewSparkline(3, "it/s", lipgloss.NewStyle())
	for _, v := range []uint64{100, 1, 2, 4} {
		s.Add(v)
	}

	assert.Equal(t, []uint64{1, 2, 4}, s.Data)
	assert.Equal(t, uint64(4), s.Max)
	assert.Equal(t, uint64(4), s.Last())
	assert.Equal(t, "▂▄█", s.Graph())
}

func TestSparkline_PadsAndResizes(t *testing.T) {
	s := NewSparkline(5, "p90", lipgloss.NewStyle())
	s.Add(0)
	assert.Equal(t, 5, utf8.RuneCountInString(s.Graph()))
	assert.Equal(t, "     ", s.Graph())

	s.Add(7)
	s.Add(8)
	s.Resize(1)
	assert.Equal(t, []uint64{8}, s.Data)
	assert.Equal(t, "█", s.Graph())

	s.Resize(0)
	assert.Empty(t, s.View())
}

func TestSparkline_EmptyLast(t *testing.T) {
	s := NewSparkline(4, "x", lipgloss.NewStyle())
	assert.Zero(t, s.Last())
}
