package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
)

func TestTrendChart(t *testing.T) {
	var buf bytes.Buffer
	points := []analysis.Point{{Year: "2020-21", Value: 0}, {Year: "2021-22", Value: 50}, {Year: "2022-23", Value: 100}}
	require.NoError(t, TrendChart(&buf, "Cálculo", points, 21, 5))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Cálculo", lines[0])
	assert.Equal(t, "100% |"+strings.Repeat(" ", 20)+"o", lines[1])
	assert.Equal(t, " 50% |"+strings.Repeat(" ", 10)+"o", lines[3])
	assert.Equal(t, "  0% |o", lines[5])
	assert.Equal(t, "     +"+strings.Repeat("-", 21), lines[6])
	assert.True(t, strings.HasPrefix(lines[7], "      2020-21"))
	assert.True(t, strings.HasSuffix(lines[7], "2022-23"))
}

func TestTrendChartClampsAndWidens(t *testing.T) {
	var buf bytes.Buffer
	points := []analysis.Point{{Year: "a", Value: -5}, {Year: "b", Value: 140}, {Year: "c", Value: 10}}
	require.NoError(t, TrendChart(&buf, "", points, 1, 3))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, "100% | o", lines[0])
	assert.Equal(t, "  0% |o o", lines[2])
}

func TestTrendChartEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TrendChart(&buf, "none", nil, 10, 5))
	assert.Empty(t, buf.String())
}

func TestChartWidthFor(t *testing.T) {
	assert.Equal(t, minChartWidth, ChartWidthFor(10))
	assert.Equal(t, 54, ChartWidthFor(60))
	assert.Equal(t, maxChartWidth, ChartWidthFor(200))
}
