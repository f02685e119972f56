package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

func series(values ...float64) []Point {
	years := []string{"2019-20", "2020-21", "2021-22", "2022-23", "2023-24", "2024-25"}
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{Year: years[i], Value: v}
	}
	return points
}

func TestTrendLinearSeries(t *testing.T) {
	for _, mode := range []string{EstimatorBasic, EstimatorAdvanced} {
		t.Run(mode, func(t *testing.T) {
			est, err := SelectEstimator(mode)
			require.NoError(t, err)

			result, err := NewTrendAnalyzer(est, 0.05).Analyze("X", MetricPerformance, series(60, 65, 70, 75, 80))
			require.NoError(t, err)
			assert.Equal(t, models.StatusOK, result.Status)
			assert.InDelta(t, 5.0, result.Slope, 1e-9)
			assert.InDelta(t, 60.0, result.Intercept, 1e-9)
			assert.InDelta(t, 1.0, result.RSquared, 1e-9)
			assert.Equal(t, models.TrendImproving, result.Classification)
			assert.Len(t, result.YearOverYear, 4)
			assert.Equal(t, "2019-20", result.FirstYear)
			assert.Equal(t, 80.0, result.LastValue)
		})
	}
}

func TestTrendConstantSeries(t *testing.T) {
	result, err := NewTrendAnalyzer(MonotonicEstimator{}, 0.05).Analyze("X", MetricPerformance, series(70, 70, 70, 70))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, result.Slope, 1e-12)
	assert.Equal(t, 0.0, result.RSquared)
	assert.Nil(t, result.SlopePValue)
	assert.Equal(t, models.TrendStable, result.Classification)
	require.NotNil(t, result.MannKendallTrend)
	assert.Equal(t, "no trend", *result.MannKendallTrend)
}

func TestTrendModeReflectsWhatRan(t *testing.T) {
	analyzer := NewTrendAnalyzer(MonotonicEstimator{}, 0.05)

	short, err := analyzer.Analyze("X", MetricPerformance, series(60, 62))
	require.NoError(t, err)
	assert.Equal(t, models.TrendModeBasic, short.Mode)
	assert.Nil(t, short.MannKendallTrend)
	assert.Nil(t, short.TheilSenSlope)
	assert.Equal(t, models.TrendImproving, short.Classification)

	long, err := analyzer.Analyze("X", MetricPerformance, series(60, 62, 61, 66))
	require.NoError(t, err)
	assert.Equal(t, models.TrendModeAdvanced, long.Mode)
	assert.NotNil(t, long.TheilSenSlope)

	basic, err := NewTrendAnalyzer(LinearEstimator{}, 0.05).Analyze("X", MetricPerformance, series(60, 62, 61, 66))
	require.NoError(t, err)
	assert.Equal(t, models.TrendModeBasic, basic.Mode)
	assert.Nil(t, basic.MannKendallTrend)
}

func TestTrendInsufficientData(t *testing.T) {
	analyzer := NewTrendAnalyzer(MonotonicEstimator{}, 0.05)
	for _, points := range [][]Point{nil, series(70)} {
		result, err := analyzer.Analyze("X", MetricPerformance, points)
		require.ErrorIs(t, err, ErrInsufficientData)
		assert.Equal(t, models.StatusInsufficientData, result.Status)
		assert.Empty(t, result.Classification)
	}
}

func TestTrendOrdersPointsAndUsesYearGaps(t *testing.T) {
	points := []Point{
		{Year: "2023-24", Value: 68},
		{Year: "2019-20", Value: 60},
		{Year: "2021-22", Value: 64},
	}
	result, err := NewTrendAnalyzer(LinearEstimator{}, 0.05).Analyze("X", MetricPerformance, points)
	require.NoError(t, err)
	assert.Equal(t, "2019-20", result.FirstYear)
	assert.Equal(t, "2023-24", result.LastYear)
	assert.InDelta(t, 2.0, result.Slope, 1e-9)
}

func TestTrendMajorityFallback(t *testing.T) {
	// Noisy enough that neither test is significant; two of three steps decline.
	result, err := NewTrendAnalyzer(MonotonicEstimator{}, 0.05).Analyze("X", MetricPerformance, series(70, 66, 72, 69))
	require.NoError(t, err)
	assert.Equal(t, []models.TrendClass{models.TrendDeclining, models.TrendImproving, models.TrendDeclining}, result.YearOverYear)
	assert.Equal(t, models.TrendDeclining, result.Classification)
}

func TestClassifyDelta(t *testing.T) {
	assert.Equal(t, models.TrendStable, ClassifyDelta(1.0))
	assert.Equal(t, models.TrendStable, ClassifyDelta(-1.0))
	assert.Equal(t, models.TrendImproving, ClassifyDelta(1.01))
	assert.Equal(t, models.TrendDeclining, ClassifyDelta(-1.01))
}

func TestSelectEstimator(t *testing.T) {
	est, err := SelectEstimator("auto")
	require.NoError(t, err)
	assert.Equal(t, models.TrendModeAdvanced, est.Mode())

	est, err = SelectEstimator(" Basic ")
	require.NoError(t, err)
	assert.Equal(t, models.TrendModeBasic, est.Mode())

	_, err = SelectEstimator("quantum")
	assert.Error(t, err)
}

func TestTrendIsDeterministic(t *testing.T) {
	analyzer := NewTrendAnalyzer(MonotonicEstimator{}, 0.05)
	a, err := analyzer.Analyze("X", MetricSuccess, series(55, 61, 58, 63, 70))
	require.NoError(t, err)
	b, err := analyzer.Analyze("X", MetricSuccess, series(55, 61, 58, 63, 70))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
