package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

// The getters below read from one completed run: filter.AnalysisID, or the
// latest completed run when it is empty. They return ErrNotFound when no
// such run exists.

func (c *Client) GetChangeEvents(filter models.ResultFilter) ([]models.ChangeEvent, error) {
	id, err := c.resolveAnalysis(filter.AnalysisID)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.Query(`
		SELECT analysis_id, subject_code, year1, year2, kind, added, removed, changed, magnitude
		FROM change_events
		WHERE analysis_id = ? AND (? = '' OR subject_code = ?) AND (? = '' OR kind = ?)
		ORDER BY subject_code, kind, id
	`, id, filter.SubjectCode, filter.SubjectCode, filter.Factor, filter.Factor)
	if err != nil {
		return nil, persistErr("get change events", err)
	}
	defer rows.Close()

	out := []models.ChangeEvent{}
	for rows.Next() {
		var ev models.ChangeEvent
		var added, removed string
		var magnitude sql.NullFloat64
		err := rows.Scan(&ev.AnalysisID, &ev.SubjectCode, &ev.Year1, &ev.Year2, &ev.Kind,
			&added, &removed, &ev.Changed, &magnitude)
		if err != nil {
			return nil, persistErr("scan change event", err)
		}
		ev.Added = unmarshalList(added)
		ev.Removed = unmarshalList(removed)
		ev.Magnitude = nullFloat(magnitude)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate change events", err)
	}
	return out, nil
}

func (c *Client) GetCorrelations(filter models.ResultFilter) ([]models.CorrelationResult, error) {
	id, err := c.resolveAnalysis(filter.AnalysisID)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.Query(`
		SELECT analysis_id, subject_code, factor, status, periods_with_change, periods_without_change,
			mean_delta_with_change, mean_delta_without_change, impact_diff, t_statistic, p_value,
			significant, cohens_d, COALESCE(effect_size, ''), COALESCE(impact_class, ''), created_at
		FROM correlation_results
		WHERE analysis_id = ? AND (? = '' OR subject_code = ?) AND (? = '' OR factor = ?)
		ORDER BY subject_code = ? DESC, subject_code, factor
	`, id, filter.SubjectCode, filter.SubjectCode, filter.Factor, filter.Factor, models.GlobalSubjectCode)
	if err != nil {
		return nil, persistErr("get correlations", err)
	}
	defer rows.Close()

	out := []models.CorrelationResult{}
	for rows.Next() {
		var r models.CorrelationResult
		var meanWith, meanWithout, diff, t, p, d sql.NullFloat64
		var significant sql.NullBool
		var createdAt int64
		err := rows.Scan(&r.AnalysisID, &r.SubjectCode, &r.Factor, &r.Status, &r.PeriodsWithChange,
			&r.PeriodsWithoutChange, &meanWith, &meanWithout, &diff, &t, &p, &significant, &d,
			&r.EffectSize, &r.ImpactClass, &createdAt)
		if err != nil {
			return nil, persistErr("scan correlation", err)
		}
		r.MeanDeltaWithChange = nullFloat(meanWith)
		r.MeanDeltaWithoutChange = nullFloat(meanWithout)
		r.ImpactDiff = nullFloat(diff)
		r.TStatistic = nullFloat(t)
		r.PValue = nullFloat(p)
		r.CohensD = nullFloat(d)
		if significant.Valid {
			s := significant.Bool
			r.Significant = &s
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate correlations", err)
	}
	return out, nil
}

func (c *Client) GetTrends(filter models.ResultFilter) ([]models.TrendResult, error) {
	id, err := c.resolveAnalysis(filter.AnalysisID)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.Query(`
		SELECT analysis_id, subject_code, metric, status, points, COALESCE(first_year, ''), COALESCE(last_year, ''),
			COALESCE(first_value, 0), COALESCE(last_value, 0), COALESCE(slope, 0), COALESCE(intercept, 0),
			COALESCE(r_squared, 0), slope_p_value, mann_kendall_trend, mann_kendall_p_value, theil_sen_slope,
			year_over_year, COALESCE(classification, ''), mode, COALESCE(series, ''), created_at
		FROM trend_results
		WHERE analysis_id = ? AND (? = '' OR subject_code = ?)
		ORDER BY subject_code, metric
	`, id, filter.SubjectCode, filter.SubjectCode)
	if err != nil {
		return nil, persistErr("get trends", err)
	}
	defer rows.Close()

	out := []models.TrendResult{}
	for rows.Next() {
		var t models.TrendResult
		var slopeP, mkP, theilSen sql.NullFloat64
		var mkTrend sql.NullString
		var yoy, series string
		var createdAt int64
		err := rows.Scan(&t.AnalysisID, &t.SubjectCode, &t.Metric, &t.Status, &t.Points, &t.FirstYear, &t.LastYear,
			&t.FirstValue, &t.LastValue, &t.Slope, &t.Intercept, &t.RSquared, &slopeP, &mkTrend, &mkP, &theilSen,
			&yoy, &t.Classification, &t.Mode, &series, &createdAt)
		if err != nil {
			return nil, persistErr("scan trend", err)
		}
		t.SlopePValue = nullFloat(slopeP)
		t.MannKendallTrend = nullString(mkTrend)
		t.MannKendallPValue = nullFloat(mkP)
		t.TheilSenSlope = nullFloat(theilSen)
		t.YearOverYear = []models.TrendClass{}
		json.Unmarshal([]byte(yoy), &t.YearOverYear)
		t.Series = []models.SeriesPoint{}
		if series != "" {
			json.Unmarshal([]byte(series), &t.Series)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate trends", err)
	}
	return out, nil
}

func (c *Client) GetInsights(filter models.ResultFilter) ([]models.Insight, error) {
	id, err := c.resolveAnalysis(filter.AnalysisID)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.Query(`
		SELECT analysis_id, scope, subject_code, kind, text, COALESCE(supporting_metrics, ''), created_at
		FROM insights
		WHERE analysis_id = ? AND (? = '' OR scope = ?) AND (? = '' OR subject_code = ?)
		ORDER BY scope, subject_code, id
	`, id, filter.Scope, filter.Scope, filter.SubjectCode, filter.SubjectCode)
	if err != nil {
		return nil, persistErr("get insights", err)
	}
	defer rows.Close()

	out := []models.Insight{}
	for rows.Next() {
		var in models.Insight
		var subject sql.NullString
		var metrics string
		var createdAt int64
		if err := rows.Scan(&in.AnalysisID, &in.Scope, &subject, &in.Kind, &in.Text, &metrics, &createdAt); err != nil {
			return nil, persistErr("scan insight", err)
		}
		in.SubjectCode = nullString(subject)
		in.SupportingMetrics = map[string]any{}
		if metrics != "" {
			json.Unmarshal([]byte(metrics), &in.SupportingMetrics)
		}
		in.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate insights", err)
	}
	return out, nil
}
