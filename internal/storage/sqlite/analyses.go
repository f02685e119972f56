package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

// CreateAnalysisRun registers a run in the running state. Its results stay
// invisible to readers until CommitAnalysis marks it completed.
func (c *Client) CreateAnalysisRun(run *models.AnalysisRun) error {
	if run.Status == "" {
		run.Status = models.RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := c.db.Exec(`
		INSERT INTO analysis_runs (id, status, trend_mode, metric, subject_filter, semester, started_at, subjects_total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Status, run.TrendMode, run.Metric, run.SubjectFilter, run.Semester, run.StartedAt.Unix(), run.SubjectsTotal)
	if err != nil {
		return persistErr("create analysis run", err)
	}

	logger.Info("Analysis run started", zap.String("analysis_id", run.ID))
	return nil
}

// CommitAnalysis writes every result of a run and marks it completed in a
// single transaction. On error nothing of the batch is visible.
func (c *Client) CommitAnalysis(batch *models.AnalysisBatch) error {
	tx, err := c.db.Begin()
	if err != nil {
		return persistErr("begin analysis commit", err)
	}
	defer tx.Rollback()

	id := batch.Run.ID
	now := time.Now().Unix()

	for _, ev := range batch.ChangeEvents {
		_, err := tx.Exec(`
			INSERT INTO change_events (analysis_id, subject_code, year1, year2, kind, added, removed, changed, magnitude)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, ev.SubjectCode, ev.Year1, ev.Year2, ev.Kind, marshalList(ev.Added), marshalList(ev.Removed),
			ev.Changed, ev.Magnitude)
		if err != nil {
			return persistErr("insert change event", err)
		}
	}

	for _, r := range batch.Correlations {
		_, err := tx.Exec(`
			INSERT INTO correlation_results (analysis_id, subject_code, factor, status, periods_with_change,
				periods_without_change, mean_delta_with_change, mean_delta_without_change, impact_diff,
				t_statistic, p_value, significant, cohens_d, effect_size, impact_class, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, r.SubjectCode, r.Factor, r.Status, r.PeriodsWithChange, r.PeriodsWithoutChange,
			r.MeanDeltaWithChange, r.MeanDeltaWithoutChange, r.ImpactDiff, r.TStatistic, r.PValue,
			r.Significant, r.CohensD, r.EffectSize, r.ImpactClass, now)
		if err != nil {
			return persistErr("insert correlation result", err)
		}
	}

	for _, t := range batch.Trends {
		yoy, _ := json.Marshal(t.YearOverYear)
		series := t.Series
		if series == nil {
			series = []models.SeriesPoint{}
		}
		seriesJSON, _ := json.Marshal(series)
		_, err := tx.Exec(`
			INSERT INTO trend_results (analysis_id, subject_code, metric, status, points, first_year, last_year,
				first_value, last_value, slope, intercept, r_squared, slope_p_value, mann_kendall_trend,
				mann_kendall_p_value, theil_sen_slope, year_over_year, classification, mode, series, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, t.SubjectCode, t.Metric, t.Status, t.Points, t.FirstYear, t.LastYear, t.FirstValue, t.LastValue,
			t.Slope, t.Intercept, t.RSquared, t.SlopePValue, t.MannKendallTrend, t.MannKendallPValue,
			t.TheilSenSlope, string(yoy), t.Classification, t.Mode, string(seriesJSON), now)
		if err != nil {
			return persistErr("insert trend result", err)
		}
	}

	for _, in := range batch.Insights {
		metrics, err := json.Marshal(in.SupportingMetrics)
		if err != nil {
			return persistErr("encode insight metrics", err)
		}
		_, err = tx.Exec(`
			INSERT INTO insights (analysis_id, scope, subject_code, kind, text, supporting_metrics, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, in.Scope, in.SubjectCode, in.Kind, in.Text, string(metrics), now)
		if err != nil {
			return persistErr("insert insight", err)
		}
	}

	failures, _ := json.Marshal(batch.Run.Failures)
	res, err := tx.Exec(`
		UPDATE analysis_runs
		SET status = ?, completed_at = ?, subjects_total = ?, succeeded = ?, skipped = ?, failed = ?, failures = ?
		WHERE id = ? AND status = ?
	`, models.RunCompleted, now, batch.Run.SubjectsTotal, batch.Run.Succeeded, batch.Run.Skipped,
		batch.Run.Failed, string(failures), id, models.RunRunning)
	if err != nil {
		return persistErr("complete analysis run", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return persistErr("complete analysis run", errors.New("run "+id+" is not running"))
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit analysis", err)
	}

	logger.Info("Analysis committed",
		zap.String("analysis_id", id),
		zap.Int("change_events", len(batch.ChangeEvents)),
		zap.Int("correlations", len(batch.Correlations)),
		zap.Int("trends", len(batch.Trends)),
		zap.Int("insights", len(batch.Insights)),
	)
	return nil
}

func (c *Client) FailAnalysisRun(id, reason string) error {
	_, err := c.db.Exec(`
		UPDATE analysis_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?
	`, models.RunFailed, time.Now().Unix(), reason, id)
	if err != nil {
		return persistErr("fail analysis run", err)
	}
	logger.Warn("Analysis run failed", zap.String("analysis_id", id), zap.String("reason", reason))
	return nil
}

const runColumns = `id, status, COALESCE(trend_mode, ''), COALESCE(metric, ''), COALESCE(subject_filter, ''),
	COALESCE(semester, ''), started_at, completed_at,
	subjects_total, succeeded, skipped, failed, COALESCE(error, ''), COALESCE(failures, '')`

func scanRun(s scanner) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	var startedAt int64
	var completedAt sql.NullInt64
	var failures string
	err := s.Scan(&run.ID, &run.Status, &run.TrendMode, &run.Metric, &run.SubjectFilter, &run.Semester, &startedAt, &completedAt,
		&run.SubjectsTotal, &run.Succeeded, &run.Skipped, &run.Failed, &run.Error, &failures)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(startedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		run.CompletedAt = &t
	}
	if failures != "" && failures != "null" {
		json.Unmarshal([]byte(failures), &run.Failures)
	}
	return &run, nil
}

func (c *Client) GetAnalysisRun(id string) (*models.AnalysisRun, error) {
	run, err := scanRun(c.db.QueryRow(`SELECT `+runColumns+` FROM analysis_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get analysis run", err)
	}
	return run, nil
}

func (c *Client) ListAnalysisRuns(limit int) ([]models.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.Query(`SELECT `+runColumns+` FROM analysis_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistErr("list analysis runs", err)
	}
	defer rows.Close()

	runs := []models.AnalysisRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, persistErr("scan analysis run", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate analysis runs", err)
	}
	return runs, nil
}

// LatestAnalysisID returns the most recent completed run, or ErrNotFound.
func (c *Client) LatestAnalysisID() (string, error) {
	var id string
	err := c.db.QueryRow(`
		SELECT id FROM analysis_runs WHERE status = ? ORDER BY completed_at DESC, rowid DESC LIMIT 1
	`, models.RunCompleted).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", persistErr("get latest analysis", err)
	}
	return id, nil
}

// resolveAnalysis maps an empty id to the latest completed run and rejects
// runs that have not completed.
func (c *Client) resolveAnalysis(id string) (string, error) {
	if id == "" {
		return c.LatestAnalysisID()
	}
	var status string
	err := c.db.QueryRow(`SELECT status FROM analysis_runs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && status != string(models.RunCompleted)) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", persistErr("resolve analysis", err)
	}
	return id, nil
}
