package analysis

import (
	"fmt"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

const (
	// ImpactThreshold is the mean-difference, in percentage points, at which a
	// factor is classified as positive or negative. The bound is inclusive.
	ImpactThreshold = 2.0

	minSamplesForTest = 2
)

// Period is one consecutive-year step of a subject with whatever change
// determinations exist for it.
type Period struct {
	models.PerformancePeriod
	Faculty    *models.ChangeEvent `json:"faculty,omitempty"`
	Evaluation *models.ChangeEvent `json:"evaluation,omitempty"`
}

func (p Period) Change(factor models.Factor) *models.ChangeEvent {
	if factor == models.FactorFaculty {
		return p.Faculty
	}
	return p.Evaluation
}

// BuildPeriods pairs consecutive points of one subject's series and attaches
// change events computed from the snapshots of exactly those two years.
// A factor whose snapshots are missing for either year is left nil.
func BuildPeriods(subject string, points []Point, faculty []models.FacultySnapshot, evaluation []models.EvaluationSnapshot) ([]Period, error) {
	facultyByYear := make(map[string]models.FacultySnapshot)
	for _, s := range MergeFacultyByYear(faculty) {
		if s.SubjectCode == subject {
			facultyByYear[s.AcademicYear] = s
		}
	}
	evalByYear := make(map[string]models.EvaluationSnapshot)
	for _, s := range MergeEvaluationByYear(evaluation) {
		if s.SubjectCode == subject {
			evalByYear[s.AcademicYear] = s
		}
	}

	periods := make([]Period, 0, len(points))
	for i := 0; i+1 < len(points); i++ {
		y1, y2 := points[i], points[i+1]
		p := Period{PerformancePeriod: models.PerformancePeriod{
			SubjectCode: subject,
			Year1:       y1.Year,
			Year2:       y2.Year,
			MetricDelta: y2.Value - y1.Value,
		}}

		f1, ok1 := facultyByYear[y1.Year]
		f2, ok2 := facultyByYear[y2.Year]
		if ok1 && ok2 {
			ev, err := DetectFacultyChange(f1, f2)
			if err != nil {
				return nil, err
			}
			p.Faculty = &ev
		}

		e1, ok1 := evalByYear[y1.Year]
		e2, ok2 := evalByYear[y2.Year]
		if ok1 && ok2 {
			ev, err := DetectEvaluationChange(e1, e2)
			if err != nil {
				return nil, err
			}
			p.Evaluation = &ev
		}

		periods = append(periods, p)
	}
	return periods, nil
}

type CorrelationEngine struct {
	alpha float64
}

func NewCorrelationEngine(alpha float64) *CorrelationEngine {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	return &CorrelationEngine{alpha: alpha}
}

// Correlate measures whether periods in which factor changed moved the metric
// differently from periods in which it did not. When either side has no
// periods the returned result carries StatusInsufficientData and the error is
// an *InsufficientDataError.
func (e *CorrelationEngine) Correlate(subject string, factor models.Factor, periods []Period) (models.CorrelationResult, error) {
	if !factor.Valid() {
		return models.CorrelationResult{}, fmt.Errorf("unknown factor %q", factor)
	}

	var with, without []float64
	for _, p := range periods {
		ev := p.Change(factor)
		if ev == nil {
			continue
		}
		if ev.Changed {
			with = append(with, p.MetricDelta)
		} else {
			without = append(without, p.MetricDelta)
		}
	}

	result := models.CorrelationResult{
		SubjectCode:          subject,
		Factor:               factor,
		Status:               models.StatusInsufficientData,
		PeriodsWithChange:    len(with),
		PeriodsWithoutChange: len(without),
	}

	if len(with) == 0 || len(without) == 0 {
		have := len(with)
		if len(without) < have {
			have = len(without)
		}
		return result, &InsufficientDataError{
			Statistic: fmt.Sprintf("%s correlation of %s", factor, subject),
			Need:      1,
			Have:      have,
		}
	}

	meanWith := mean(with)
	meanWithout := mean(without)
	diff := meanWith - meanWithout

	result.Status = models.StatusOK
	result.MeanDeltaWithChange = &meanWith
	result.MeanDeltaWithoutChange = &meanWithout
	result.ImpactDiff = &diff
	result.ImpactClass = ClassifyImpact(diff, meanWith)

	if len(with) >= minSamplesForTest && len(without) >= minSamplesForTest {
		if w, ok := WelchTTest(with, without); ok {
			t, p := w.TStatistic, w.PValue
			significant := p < e.alpha
			result.TStatistic = &t
			result.PValue = &p
			result.Significant = &significant
		}
		if d, ok := CohensD(with, without); ok {
			result.CohensD = &d
			result.EffectSize = EffectSizeCategory(d)
		}
	}

	return result, nil
}

// ClassifyImpact applies the fixed thresholds: positive at +2.0 pp or more,
// negative at -2.0 pp or less or when periods with change decline on average.
func ClassifyImpact(impactDiff, meanDeltaWithChange float64) models.ImpactClass {
	switch {
	case impactDiff >= ImpactThreshold:
		return models.ImpactPositive
	case impactDiff <= -ImpactThreshold || meanDeltaWithChange < 0:
		return models.ImpactNegative
	default:
		return models.ImpactNeutral
	}
}

// CorrelateGlobal pools the periods of every subject into one institution-wide result.
func (e *CorrelationEngine) CorrelateGlobal(factor models.Factor, periods []Period) (models.CorrelationResult, error) {
	return e.Correlate(models.GlobalSubjectCode, factor, periods)
}
