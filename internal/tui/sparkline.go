package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var sparkLevels = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// sparkline keeps a scrolling window of samples and renders them as one
// line of block glyphs, scaled to the window maximum.
type sparkline struct {
	data  []uint64
	width int
	style lipgloss.Style
}

func newSparkline(width int, style lipgloss.Style) sparkline {
	return sparkline{
		width: width,
		style: style,
		data:  make([]uint64, 0, width),
	}
}

func (s *sparkline) add(v uint64) {
	s.data = append(s.data, v)
	if len(s.data) > s.width {
		s.data = s.data[len(s.data)-s.width:]
	}
}

func (s *sparkline) setWidth(w int) {
	if w < 1 {
		w = 1
	}
	s.width = w
	if len(s.data) > w {
		s.data = s.data[len(s.data)-w:]
	}
}

func (s sparkline) view() string {
	if s.width <= 0 {
		return ""
	}
	var max uint64
	for _, v := range s.data {
		if v > max {
			max = v
		}
	}

	var g strings.Builder
	for _, v := range s.data {
		idx := 0
		if max > 0 {
			idx = int(float64(v) / float64(max) * float64(len(sparkLevels)-1))
			if idx >= len(sparkLevels) {
				idx = len(sparkLevels) - 1
			}
		}
		g.WriteRune(sparkLevels[idx])
	}
	if pad := s.width - len(s.data); pad > 0 {
		g.WriteString(strings.Repeat(" ", pad))
	}
	return s.style.Render(g.String())
}
