package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
)

const (
	defaultChartHeight    = 10
	minChartWidth         = 12
	maxChartWidth         = 72
	fallbackTerminalWidth = 80
	axisLabelWidth        = 4
	axisSeparator         = " |"
	marker                = 'o'
)

// ChartWidthFor returns the plot area that fits a line of totalWidth columns.
func ChartWidthFor(totalWidth int) int {
	width := totalWidth - axisLabelWidth - len(axisSeparator)
	if width < minChartWidth {
		width = minChartWidth
	}
	if width > maxChartWidth {
		width = maxChartWidth
	}
	return width
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return fallbackTerminalWidth
	}
	return width
}

// TrendChart draws a rate series on a fixed 0-100% scale. A width of zero or
// less sizes the chart to the terminal.
func TrendChart(w io.Writer, title string, points []analysis.Point, width, height int) error {
	if len(points) == 0 {
		return nil
	}
	if height < 2 {
		height = defaultChartHeight
	}
	if width <= 0 {
		width = ChartWidthFor(terminalWidth())
	}
	if width < len(points) {
		width = len(points)
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}
	for i, p := range points {
		grid[height-1-valueRow(p.Value, height)][column(i, len(points), width)] = marker
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteByte('\n')
	}
	for i, row := range grid {
		fmt.Fprintf(&b, "%*s%s%s\n", axisLabelWidth, axisLabel(height-1-i, height), axisSeparator,
			strings.TrimRight(string(row), " "))
	}
	fmt.Fprintf(&b, "%*s +%s\n", axisLabelWidth, "", strings.Repeat("-", width))
	b.WriteString(yearLabels(points, width))
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

func valueRow(v float64, height int) int {
	v = math.Max(0, math.Min(100, v))
	return int(math.Round(v / 100 * float64(height-1)))
}

func column(i, n, width int) int {
	if n == 1 {
		return 0
	}
	return i * (width - 1) / (n - 1)
}

func axisLabel(row, height int) string {
	switch row {
	case height - 1:
		return "100%"
	case 0:
		return "0%"
	case (height - 1) / 2:
		return fmt.Sprintf("%.0f%%", float64(row)/float64(height-1)*100)
	}
	return ""
}

// yearLabels puts the first and last year under the axis ends.
func yearLabels(points []analysis.Point, width int) string {
	pad := strings.Repeat(" ", axisLabelWidth+len(axisSeparator))
	first := points[0].Year
	if len(points) == 1 {
		return pad + first
	}
	last := points[len(points)-1].Year
	gap := width - len(first) - len(last)
	if gap < 1 {
		return pad + first + " .. " + last
	}
	return pad + first + strings.Repeat(" ", gap) + last
}
