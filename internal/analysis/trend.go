package analysis

import (
	"fmt"
	"sort"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

// StableBand is the year-over-year change, in percentage points, inside which
// a subject counts as stable. The band edges are stable.
const StableBand = 1.0

func ClassifyDelta(delta float64) models.TrendClass {
	switch {
	case delta > StableBand:
		return models.TrendImproving
	case delta < -StableBand:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

type TrendAnalyzer struct {
	estimator TrendEstimator
	alpha     float64
}

func NewTrendAnalyzer(estimator TrendEstimator, alpha float64) *TrendAnalyzer {
	if estimator == nil {
		estimator = LinearEstimator{}
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	return &TrendAnalyzer{estimator: estimator, alpha: alpha}
}

func (a *TrendAnalyzer) Mode() models.TrendMode {
	return a.estimator.Mode()
}

// Analyze fits the trend of one subject's metric series. Points are ordered
// chronologically first. With fewer than two points the result carries
// StatusInsufficientData alongside an *InsufficientDataError.
func (a *TrendAnalyzer) Analyze(subject, metric string, points []Point) (models.TrendResult, error) {
	ordered := append([]Point(nil), points...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return CompareYears(ordered[i].Year, ordered[j].Year) < 0
	})

	result := models.TrendResult{
		SubjectCode:  subject,
		Metric:       metric,
		Status:       models.StatusInsufficientData,
		Points:       len(ordered),
		YearOverYear: []models.TrendClass{},
		Mode:         models.TrendModeBasic,
	}
	if len(ordered) > 0 {
		result.FirstYear, result.FirstValue = ordered[0].Year, ordered[0].Value
		last := ordered[len(ordered)-1]
		result.LastYear, result.LastValue = last.Year, last.Value
	}

	if len(ordered) < 2 {
		return result, &InsufficientDataError{
			Statistic: fmt.Sprintf("%s trend of %s", metric, subject),
			Need:      2,
			Have:      len(ordered),
		}
	}

	years := make([]string, len(ordered))
	ys := make([]float64, len(ordered))
	for i, p := range ordered {
		years[i] = p.Year
		ys[i] = p.Value
	}
	xs := yearIndexes(years)

	for i := 1; i < len(ys); i++ {
		result.YearOverYear = append(result.YearOverYear, ClassifyDelta(ys[i]-ys[i-1]))
	}

	est := a.estimator.Estimate(xs, ys, a.alpha)
	result.Status = models.StatusOK
	result.Slope = est.Linear.Slope
	result.Intercept = est.Linear.Intercept
	result.RSquared = est.Linear.RSquared
	result.SlopePValue = est.Linear.PValue

	if est.MannKendall != nil {
		trend, p := est.MannKendall.Trend, est.MannKendall.PValue
		result.MannKendallTrend = &trend
		result.MannKendallPValue = &p
		result.Mode = models.TrendModeAdvanced
	}
	result.TheilSenSlope = est.TheilSenSlope
	result.Classification = a.classify(est, result.YearOverYear)

	return result, nil
}

func (a *TrendAnalyzer) classify(est Estimate, yoy []models.TrendClass) models.TrendClass {
	if mk := est.MannKendall; mk != nil && mk.PValue < a.alpha {
		switch mk.Trend {
		case "increasing":
			return models.TrendImproving
		case "decreasing":
			return models.TrendDeclining
		}
	}

	if p := est.Linear.PValue; p != nil && *p < a.alpha {
		switch {
		case est.Linear.Slope > 0:
			return models.TrendImproving
		case est.Linear.Slope < 0:
			return models.TrendDeclining
		}
	}

	counts := make(map[models.TrendClass]int, 3)
	for _, c := range yoy {
		counts[c]++
	}
	for _, c := range []models.TrendClass{models.TrendImproving, models.TrendDeclining, models.TrendStable} {
		if counts[c]*2 > len(yoy) {
			return c
		}
	}

	return ClassifyDelta(est.Linear.Slope)
}
