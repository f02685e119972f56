// Package report renders a completed analysis run as a text report with trend
// charts, and exports it as JSON and CSV.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

type Store interface {
	GetAnalysisRun(id string) (*models.AnalysisRun, error)
	LatestAnalysisID() (string, error)
	GetRecords(filter models.RecordFilter) ([]models.SubjectYearRecord, error)
	GetChangeEvents(filter models.ResultFilter) ([]models.ChangeEvent, error)
	GetCorrelations(filter models.ResultFilter) ([]models.CorrelationResult, error)
	GetTrends(filter models.ResultFilter) ([]models.TrendResult, error)
	GetInsights(filter models.ResultFilter) ([]models.Insight, error)
}

// Data is everything a report shows about one run.
type Data struct {
	Run          models.AnalysisRun          `json:"run"`
	Trends       []models.TrendResult        `json:"trends"`
	Correlations []models.CorrelationResult  `json:"correlations"`
	ChangeEvents []models.ChangeEvent        `json:"change_events"`
	Insights     []models.Insight            `json:"insights"`
	Series       map[string][]analysis.Point `json:"series"`
	Names        map[string]string           `json:"-"`
}

// Load reads a run's results. An empty id selects the latest completed run.
func Load(store Store, analysisID string) (*Data, error) {
	if analysisID == "" {
		id, err := store.LatestAnalysisID()
		if err != nil {
			return nil, fmt.Errorf("failed to find latest analysis: %w", err)
		}
		analysisID = id
	}

	run, err := store.GetAnalysisRun(analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis %s: %w", analysisID, err)
	}
	if run.Status != models.RunCompleted {
		return nil, fmt.Errorf("analysis %s is %s", analysisID, run.Status)
	}

	filter := models.ResultFilter{AnalysisID: analysisID}
	d := &Data{Run: *run, Series: map[string][]analysis.Point{}, Names: map[string]string{}}
	if d.Trends, err = store.GetTrends(filter); err != nil {
		return nil, err
	}
	if d.Correlations, err = store.GetCorrelations(filter); err != nil {
		return nil, err
	}
	if d.ChangeEvents, err = store.GetChangeEvents(filter); err != nil {
		return nil, err
	}
	if d.Insights, err = store.GetInsights(filter); err != nil {
		return nil, err
	}

	records, err := store.GetRecords(models.RecordFilter{SubjectCode: run.SubjectFilter, Semester: run.Semester})
	if err != nil {
		return nil, err
	}
	bySubject := map[string][]models.SubjectYearRecord{}
	for _, r := range records {
		bySubject[r.SubjectCode] = append(bySubject[r.SubjectCode], r)
		if r.SubjectName != "" {
			d.Names[r.SubjectCode] = r.SubjectName
		}
	}
	for _, t := range d.Trends {
		if len(t.Series) > 0 {
			d.Series[t.SubjectCode] = t.Series
			continue
		}
		// Runs stored before series were persisted.
		points, err := analysis.BuildSeries(bySubject[t.SubjectCode], t.Metric)
		if err != nil {
			continue
		}
		d.Series[t.SubjectCode] = points
	}
	return d, nil
}

// WriteText renders the report. chartWidth follows TrendChart.
func WriteText(w io.Writer, d *Data, chartWidth int) error {
	var b strings.Builder
	rule := strings.Repeat("=", 72)

	fmt.Fprintf(&b, "%s\nACADEMIC PERFORMANCE ANALYSIS\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Analysis:  %s\n", d.Run.ID)
	fmt.Fprintf(&b, "Started:   %s\n", d.Run.StartedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Metric:    %s (trend mode %s)\n", d.Run.Metric, d.Run.TrendMode)
	if d.Run.SubjectFilter != "" || d.Run.Semester != "" {
		fmt.Fprintf(&b, "Filter:    subject=%s semester=%s\n", orAll(d.Run.SubjectFilter), orAll(d.Run.Semester))
	}
	fmt.Fprintf(&b, "Subjects:  %d analysed, %d skipped, %d failed\n\n",
		d.Run.Succeeded, d.Run.Skipped, d.Run.Failed)

	for _, in := range d.Insights {
		if in.Scope != models.ScopeGlobal {
			continue
		}
		title := "SUMMARY"
		if in.Kind == models.InsightKindNarrative {
			title = "EXECUTIVE SUMMARY"
		}
		fmt.Fprintf(&b, "%s\n%s\n%s\n\n", title, strings.Repeat("-", len(title)), in.Text)
	}

	b.WriteString("INSTITUTION-WIDE IMPACT\n-----------------------\n")
	for _, c := range d.Correlations {
		if c.SubjectCode == models.GlobalSubjectCode {
			b.WriteString(correlationLine(c))
		}
	}
	b.WriteString("\n")

	if len(d.Run.Failures) > 0 {
		b.WriteString("FAILED SUBJECTS\n---------------\n")
		for _, f := range d.Run.Failures {
			fmt.Fprintf(&b, "  %s: %s\n", f.SubjectCode, f.Error)
		}
		b.WriteString("\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	subjectInsights := map[string]string{}
	for _, in := range d.Insights {
		if in.Scope == models.ScopeSubject && in.SubjectCode != nil {
			subjectInsights[*in.SubjectCode] = in.Text
		}
	}
	correlations := map[string][]models.CorrelationResult{}
	for _, c := range d.Correlations {
		correlations[c.SubjectCode] = append(correlations[c.SubjectCode], c)
	}

	trends := append([]models.TrendResult(nil), d.Trends...)
	sort.SliceStable(trends, func(i, j int) bool { return trends[i].SubjectCode < trends[j].SubjectCode })

	for _, t := range trends {
		var sb strings.Builder
		title := t.SubjectCode
		if name := d.Names[t.SubjectCode]; name != "" {
			title = fmt.Sprintf("%s - %s", t.SubjectCode, name)
		}
		fmt.Fprintf(&sb, "%s\n%s\n", title, strings.Repeat("-", min(len(title), 72)))
		if t.Status == models.StatusOK {
			fmt.Fprintf(&sb, "Trend: %s, slope %+.2f pp/year, R² %.2f", t.Classification, t.Slope, t.RSquared)
			if t.MannKendallTrend != nil {
				fmt.Fprintf(&sb, ", Mann-Kendall %s (p=%.3f)", *t.MannKendallTrend, *t.MannKendallPValue)
			}
			sb.WriteString("\n")
		} else {
			sb.WriteString("Trend: insufficient data\n")
		}
		for _, c := range correlations[t.SubjectCode] {
			sb.WriteString(correlationLine(c))
		}
		if text, ok := subjectInsights[t.SubjectCode]; ok {
			fmt.Fprintf(&sb, "%s\n", text)
		}
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
		if points := d.Series[t.SubjectCode]; len(points) > 1 {
			if err := TrendChart(w, "", points, chartWidth, defaultChartHeight); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func correlationLine(c models.CorrelationResult) string {
	if c.Status != models.StatusOK {
		return fmt.Sprintf("  %-10s insufficient data (%d with change, %d without)\n",
			c.Factor, c.PeriodsWithChange, c.PeriodsWithoutChange)
	}
	line := fmt.Sprintf("  %-10s %-8s diff %+6.2f pp  (with %+.2f, n=%d; without %+.2f, n=%d)",
		c.Factor, c.ImpactClass, *c.ImpactDiff,
		*c.MeanDeltaWithChange, c.PeriodsWithChange, *c.MeanDeltaWithoutChange, c.PeriodsWithoutChange)
	if c.PValue != nil {
		line += fmt.Sprintf(" p=%.3f", *c.PValue)
	}
	if c.EffectSize != "" {
		line += " effect " + c.EffectSize
	}
	return line + "\n"
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}
