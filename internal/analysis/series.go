package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

const (
	MetricPerformance = "performance_rate"
	MetricSuccess     = "success_rate"
	MetricAbsenteeism = "absenteeism_rate"
)

func ValidMetric(metric string) bool {
	switch metric {
	case MetricPerformance, MetricSuccess, MetricAbsenteeism:
		return true
	}
	return false
}

type Point = models.SeriesPoint

// BuildSeries turns the records of one subject into a yearly metric series.
// Records that share an academic year are pooled before the rate is derived.
func BuildSeries(records []models.SubjectYearRecord, metric string) ([]Point, error) {
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	type counts struct{ enrolled, passed, participated int }
	byYear := make(map[string]*counts)
	var years []string
	subject := ""

	for _, r := range records {
		if subject == "" {
			subject = r.SubjectCode
		} else if r.SubjectCode != subject {
			return nil, fmt.Errorf("series mixes subjects %s and %s", subject, r.SubjectCode)
		}
		c, ok := byYear[r.AcademicYear]
		if !ok {
			c = &counts{}
			byYear[r.AcademicYear] = c
			years = append(years, r.AcademicYear)
		}
		c.enrolled += r.Enrolled
		c.passed += r.Passed
		c.participated += r.Participated
	}

	SortYears(years)

	points := make([]Point, 0, len(years))
	for _, y := range years {
		c := byYear[y]
		rates, err := CalculateRates(c.enrolled, c.passed, c.participated)
		if err != nil {
			return nil, fmt.Errorf("year %s: %w", y, err)
		}
		points = append(points, Point{Year: y, Value: rates.value(metric)})
	}
	return points, nil
}

func (r Rates) value(metric string) float64 {
	switch metric {
	case MetricSuccess:
		return r.Success
	case MetricAbsenteeism:
		return r.Absenteeism
	default:
		return r.Performance
	}
}

// ExtendSeries adds the years only covered by historical rates. Years that
// have records keep their count-based value. Several quotes for one year
// (one per semester) are averaged.
func ExtendSeries(points []Point, history []models.HistoricalRate, metric string) []Point {
	have := make(map[string]bool, len(points))
	for _, p := range points {
		have[p.Year] = true
	}

	type acc struct {
		sum float64
		n   int
	}
	extra := map[string]*acc{}
	var years []string
	for _, h := range history {
		if h.Metric != metric || have[h.AcademicYear] {
			continue
		}
		a, ok := extra[h.AcademicYear]
		if !ok {
			a = &acc{}
			extra[h.AcademicYear] = a
			years = append(years, h.AcademicYear)
		}
		a.sum += h.Value
		a.n++
	}
	if len(years) == 0 {
		return points
	}

	out := append([]Point(nil), points...)
	for _, y := range years {
		out = append(out, Point{Year: y, Value: extra[y].sum / float64(extra[y].n)})
	}
	sort.SliceStable(out, func(i, j int) bool { return CompareYears(out[i].Year, out[j].Year) < 0 })
	return out
}

// HistoryMetric maps a report's rate heading to a metric name.
func HistoryMetric(heading string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(heading)) {
	case "rendimiento":
		return MetricPerformance, true
	case "éxito", "exito":
		return MetricSuccess, true
	case "absentismo":
		return MetricAbsenteeism, true
	}
	return "", false
}
