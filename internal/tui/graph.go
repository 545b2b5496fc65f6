package tui

import (
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/sdm/internal/utils"
)

// blocks are the eighth-height bar glyphs, index 0 is empty
var blocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// renderSpeedGraph draws the aggregate speed history right-aligned in a
// width x height bar chart, scaled to the peak of the visible samples,
// with the peak labelled on the first row.
func renderSpeedGraph(history []float64, width, height int) string {
	label := utils.FormatSpeed(0)
	visible := history
	if len(visible) > width {
		visible = visible[len(visible)-width:]
	}
	peak := 0.0
	if len(visible) > 0 {
		peak = slices.Max(visible)
	}
	if peak > 0 {
		label = utils.FormatSpeed(peak)
	}

	labelWidth := lipgloss.Width(label) + 1
	graph := renderBars(visible, width-labelWidth, height, peak, ColorSuccess)
	if graph == "" {
		return ""
	}

	lines := strings.Split(graph, "\n")
	axis := lipgloss.NewStyle().Foreground(ColorSubtext).Width(labelWidth)
	for i := range lines {
		prefix := ""
		if i == 0 {
			prefix = label
		}
		lines[i] = axis.Render(prefix) + lines[i]
	}
	return strings.Join(lines, "\n")
}

// renderBars fills a grid from the right with one column per sample.
// Rows without data keep a faint dashed guide.
func renderBars(data []float64, width, height int, maxVal float64, color lipgloss.Color) string {
	if width < 1 || height < 1 {
		return ""
	}

	gridStyle := lipgloss.NewStyle().Foreground(ColorGray)
	barStyle := lipgloss.NewStyle().Foreground(color)

	rows := make([][]string, height)
	for i := range rows {
		rows[i] = make([]string, width)
		for j := range rows[i] {
			if i%2 == 0 {
				rows[i][j] = gridStyle.Render("╌")
			} else {
				rows[i][j] = " "
			}
		}
	}

	if len(data) > width {
		data = data[len(data)-width:]
	}
	offset := width - len(data)

	for x, val := range data {
		if val <= 0 || maxVal <= 0 {
			continue
		}
		eighths := min(val/maxVal, 1.0) * float64(height) * 8

		for y := 0; y < height; y++ {
			remaining := eighths - float64(y*8)
			if remaining <= 0 {
				break
			}
			glyph := blocks[8]
			if remaining < 8 {
				glyph = blocks[int(remaining)]
			}
			rows[height-1-y][offset+x] = barStyle.Render(glyph)
		}
	}

	var s strings.Builder
	for i, row := range rows {
		s.WriteString(strings.Join(row, ""))
		if i < height-1 {
			s.WriteRune('\n')
		}
	}
	return s.String()
}
