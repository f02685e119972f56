package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Export writes report.txt, analysis.json, trends.csv and correlations.csv
// into dir and returns the paths written.
func Export(dir string, d *Data, chartWidth int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	outputs := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"report.txt", func(w io.Writer) error { return WriteText(w, d, chartWidth) }},
		{"analysis.json", func(w io.Writer) error { return WriteJSON(w, d) }},
		{"trends.csv", func(w io.Writer) error { return WriteTrendsCSV(w, d) }},
		{"correlations.csv", func(w io.Writer) error { return WriteCorrelationsCSV(w, d) }},
	}

	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := writeFile(path, o.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func WriteJSON(w io.Writer, d *Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func WriteTrendsCSV(w io.Writer, d *Data) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"subject_code", "subject_name", "metric", "status", "points", "first_year", "last_year",
		"first_value", "last_value", "slope", "r_squared", "slope_p_value", "mann_kendall_trend",
		"theil_sen_slope", "classification", "mode",
	})
	for _, t := range d.Trends {
		mk := ""
		if t.MannKendallTrend != nil {
			mk = *t.MannKendallTrend
		}
		_ = cw.Write([]string{
			t.SubjectCode, d.Names[t.SubjectCode], t.Metric, string(t.Status), strconv.Itoa(t.Points),
			t.FirstYear, t.LastYear, num(t.FirstValue), num(t.LastValue), num(t.Slope), num(t.RSquared),
			optNum(t.SlopePValue), mk, optNum(t.TheilSenSlope), string(t.Classification), string(t.Mode),
		})
	}
	cw.Flush()
	return cw.Error()
}

func WriteCorrelationsCSV(w io.Writer, d *Data) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"subject_code", "factor", "status", "periods_with_change", "periods_without_change",
		"mean_delta_with_change", "mean_delta_without_change", "impact_diff", "t_statistic",
		"p_value", "significant", "cohens_d", "effect_size", "impact_class",
	})
	for _, c := range d.Correlations {
		significant := ""
		if c.Significant != nil {
			significant = strconv.FormatBool(*c.Significant)
		}
		_ = cw.Write([]string{
			c.SubjectCode, string(c.Factor), string(c.Status),
			strconv.Itoa(c.PeriodsWithChange), strconv.Itoa(c.PeriodsWithoutChange),
			optNum(c.MeanDeltaWithChange), optNum(c.MeanDeltaWithoutChange), optNum(c.ImpactDiff),
			optNum(c.TStatistic), optNum(c.PValue), significant, optNum(c.CohensD),
			c.EffectSize, string(c.ImpactClass),
		})
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string {
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(v, 'f', 4, 64), "0"), ".")
}

func optNum(v *float64) string {
	if v == nil {
		return ""
	}
	return num(*v)
}
