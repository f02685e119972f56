package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

// CriticalDelta is the year-over-year change, in percentage points, beyond
// which a period is reported as critical.
const CriticalDelta = 5.0

// SubjectAnalysis gathers everything computed for one subject in a run.
type SubjectAnalysis struct {
	SubjectCode string
	SubjectName string
	Trend       *models.TrendResult
	Faculty     *models.CorrelationResult
	Evaluation  *models.CorrelationResult
	Periods     []Period
}

type CriticalPeriod struct {
	Year1  string  `json:"year1"`
	Year2  string  `json:"year2"`
	Delta  float64 `json:"delta"`
	Factor string  `json:"co_occurring_change"`
}

// CriticalPeriods returns the periods whose |delta| exceeds CriticalDelta,
// annotated with the change that co-occurred.
func CriticalPeriods(periods []Period) []CriticalPeriod {
	out := []CriticalPeriod{}
	for _, p := range periods {
		if math.Abs(p.MetricDelta) <= CriticalDelta {
			continue
		}
		faculty := p.Faculty != nil && p.Faculty.Changed
		evaluation := p.Evaluation != nil && p.Evaluation.Changed

		factor := "neither"
		switch {
		case faculty && evaluation:
			factor = "faculty and evaluation changed"
		case faculty:
			factor = "faculty changed"
		case evaluation:
			factor = "evaluation changed"
		}
		out = append(out, CriticalPeriod{Year1: p.Year1, Year2: p.Year2, Delta: p.MetricDelta, Factor: factor})
	}
	return out
}

type Recommendation struct {
	Rank   int    `json:"rank"`
	Factor string `json:"factor"`
	Text   string `json:"text"`
}

type InsightGenerator struct{}

func NewInsightGenerator() *InsightGenerator {
	return &InsightGenerator{}
}

func (g *InsightGenerator) SubjectInsight(in SubjectAnalysis) models.Insight {
	var b strings.Builder
	metrics := map[string]any{}

	name := in.SubjectCode
	if in.SubjectName != "" {
		name = fmt.Sprintf("%s (%s)", in.SubjectName, in.SubjectCode)
	}

	if t := in.Trend; t != nil && t.Status == models.StatusOK {
		fmt.Fprintf(&b, "%s is %s: %s moved from %.1f%% in %s to %.1f%% in %s (slope %+.2f pp/year, R² %.2f).",
			name, t.Classification, t.Metric, t.FirstValue, t.FirstYear, t.LastValue, t.LastYear, t.Slope, t.RSquared)
		metrics["trend"] = string(t.Classification)
		metrics["slope"] = t.Slope
		metrics["r_squared"] = t.RSquared
		if t.MannKendallTrend != nil {
			metrics["mann_kendall_trend"] = *t.MannKendallTrend
		}
	} else {
		fmt.Fprintf(&b, "%s has too few years for a trend.", name)
	}

	for _, c := range []*models.CorrelationResult{in.Faculty, in.Evaluation} {
		if c == nil {
			continue
		}
		b.WriteString(" ")
		b.WriteString(impactStatement(c))
		if c.Status == models.StatusOK {
			metrics[string(c.Factor)+"_impact_diff"] = *c.ImpactDiff
			metrics[string(c.Factor)+"_impact"] = string(c.ImpactClass)
		}
	}

	critical := CriticalPeriods(in.Periods)
	metrics["critical_periods"] = critical
	for _, cp := range critical {
		fmt.Fprintf(&b, " Critical period %s to %s: %+.1f pp (%s).", cp.Year1, cp.Year2, cp.Delta, cp.Factor)
	}

	code := in.SubjectCode
	return models.Insight{
		Scope:             models.ScopeSubject,
		SubjectCode:       &code,
		Kind:              models.InsightKindSummary,
		Text:              b.String(),
		SupportingMetrics: metrics,
	}
}

// GlobalInsight summarises trends across subjects together with the pooled
// faculty and evaluation correlations. Either correlation may be nil.
func (g *InsightGenerator) GlobalInsight(trends []models.TrendResult, faculty, evaluation *models.CorrelationResult) models.Insight {
	counts := map[models.TrendClass]int{}
	var declining []string
	for _, t := range trends {
		if t.Status != models.StatusOK || t.SubjectCode == models.GlobalSubjectCode {
			continue
		}
		counts[t.Classification]++
		if t.Classification == models.TrendDeclining {
			declining = append(declining, t.SubjectCode)
		}
	}
	sort.Strings(declining)

	var b strings.Builder
	fmt.Fprintf(&b, "%d subjects improving, %d declining, %d stable.",
		counts[models.TrendImproving], counts[models.TrendDeclining], counts[models.TrendStable])

	metrics := map[string]any{
		"improving":          counts[models.TrendImproving],
		"declining":          counts[models.TrendDeclining],
		"stable":             counts[models.TrendStable],
		"declining_subjects": declining,
	}

	for _, c := range []*models.CorrelationResult{faculty, evaluation} {
		if c == nil {
			continue
		}
		b.WriteString(" ")
		b.WriteString(impactStatement(c))
		if c.Status == models.StatusOK {
			metrics[string(c.Factor)+"_impact_diff"] = *c.ImpactDiff
			metrics[string(c.Factor)+"_impact"] = string(c.ImpactClass)
		}
	}

	recs := Recommendations(faculty, evaluation, declining)
	metrics["recommendations"] = recs
	for _, r := range recs {
		fmt.Fprintf(&b, " %d. %s", r.Rank, r.Text)
	}

	return models.Insight{
		Scope:             models.ScopeGlobal,
		Kind:              models.InsightKindSummary,
		Text:              b.String(),
		SupportingMetrics: metrics,
	}
}

// Recommendations ranks factor advice by the size of its impact and appends
// the general advice last.
func Recommendations(faculty, evaluation *models.CorrelationResult, declining []string) []Recommendation {
	type scored struct {
		weight float64
		rec    Recommendation
	}
	var factors []scored
	for _, c := range []*models.CorrelationResult{faculty, evaluation} {
		if c == nil || c.Status != models.StatusOK {
			continue
		}
		factors = append(factors, scored{
			weight: math.Abs(*c.ImpactDiff),
			rec:    Recommendation{Factor: string(c.Factor), Text: factorAdvice(c.Factor, c.ImpactClass)},
		})
	}
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].weight > factors[j].weight })

	recs := make([]Recommendation, 0, len(factors)+3)
	for _, f := range factors {
		recs = append(recs, f.rec)
	}
	if len(declining) > 0 {
		recs = append(recs, Recommendation{
			Factor: "general",
			Text:   fmt.Sprintf("Start early intervention in the declining subjects: %s.", strings.Join(declining, ", ")),
		})
	}
	recs = append(recs,
		Recommendation{Factor: "general", Text: "Track faculty, evaluation and content changes against results every semester."},
		Recommendation{Factor: "general", Text: "Survey students to surface qualitative causes of success or failure."},
	)
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs
}

func impactStatement(c *models.CorrelationResult) string {
	label := "Faculty changes"
	if c.Factor == models.FactorEvaluation {
		label = "Evaluation method changes"
	}
	if c.Status != models.StatusOK {
		return fmt.Sprintf("%s: not enough periods to compare (%d with change, %d without).",
			label, c.PeriodsWithChange, c.PeriodsWithoutChange)
	}

	verb := "have no clear effect on"
	switch c.ImpactClass {
	case models.ImpactPositive:
		verb = "benefit"
	case models.ImpactNegative:
		verb = "hurt"
	}
	s := fmt.Sprintf("%s %s performance (impact %+.2f pp).", label, verb, *c.ImpactDiff)
	if c.Significant != nil && *c.Significant {
		s += fmt.Sprintf(" The difference is significant (p=%.3f).", *c.PValue)
	}
	return s
}

func factorAdvice(factor models.Factor, impact models.ImpactClass) string {
	switch {
	case factor == models.FactorFaculty && impact == models.ImpactPositive:
		return "Continue strategic faculty renewal in low-performing subjects and pair new staff with mentors."
	case factor == models.FactorFaculty && impact == models.ImpactNegative:
		return "Prioritise faculty continuity in key subjects and invest in development of current staff."
	case factor == models.FactorFaculty:
		return "Faculty turnover shows no clear effect; keep monitoring it alongside other factors."
	case impact == models.ImpactPositive:
		return "Encourage evaluation innovation in stagnant subjects and share the methods that worked."
	case impact == models.ImpactNegative:
		return "Standardise effective evaluation methods and introduce changes gradually with clear communication."
	default:
		return "Evaluation changes show no clear effect; review them case by case."
	}
}
