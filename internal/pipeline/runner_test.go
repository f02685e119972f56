package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/internal/storage/sqlite"
)

func record(code, year string, passed int) models.SubjectYearRecord {
	rec := models.SubjectYearRecord{
		SubjectCode: code, SubjectName: "Subject " + code, AcademicYear: year, Semester: "2S",
		Enrolled: 100, Participated: 100, Passed: passed,
	}
	if err := analysis.ApplyRates(&rec); err != nil {
		panic(err)
	}
	return rec
}

func facultySnap(code, year string, names ...string) models.FacultySnapshot {
	return models.FacultySnapshot{SubjectCode: code, AcademicYear: year, Semester: "2S", Faculty: names}
}

func seed(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(filepath.Join(t.TempDir(), "academic.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })

	_, err = c.UpsertRecords([]models.SubjectYearRecord{
		record("A", "2019-20", 50),
		record("A", "2020-21", 55),
		record("A", "2021-22", 60),
		record("A", "2022-23", 65),
		record("B", "2022-23", 40),
	})
	require.NoError(t, err)

	for _, s := range []models.FacultySnapshot{
		facultySnap("A", "2019-20", "X"),
		facultySnap("A", "2020-21", "X"),
		facultySnap("A", "2021-22", "Y"),
		facultySnap("A", "2022-23", "Y"),
	} {
		s := s
		require.NoError(t, c.UpsertFacultySnapshot(&s))
	}
	return c
}

func newRunner(store Store, narrator Narrator) *Runner {
	trends := analysis.NewTrendAnalyzer(analysis.MonotonicEstimator{}, 0.05)
	r := NewRunner(store, trends, analysis.NewCorrelationEngine(0.05), "auto", narrator)
	r.newID = func() string { return "run-1" }
	return r
}

type stubNarrator struct {
	text string
	err  error
}

func (n stubNarrator) Narrate(context.Context, models.Insight, []models.Insight) (string, error) {
	return n.text, n.err
}

func TestRunPersistsEverything(t *testing.T) {
	store := seed(t)
	var events []Event

	summary, err := newRunner(store, nil).Run(context.Background(), Options{}, func(e Event) { events = append(events, e) })
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.AnalysisID)
	assert.Equal(t, models.RunCompleted, summary.Status)
	assert.Equal(t, 2, summary.SubjectsTotal)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Trends)
	assert.Equal(t, 4, summary.Correlations)
	assert.Equal(t, 3, summary.ChangeEvents)
	assert.Equal(t, 2, summary.Insights)

	require.Len(t, events, 4)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, OutcomeSucceeded, events[1].Outcome)
	assert.Equal(t, "B", events[2].SubjectCode)
	assert.Equal(t, OutcomeSkipped, events[2].Outcome)
	assert.Equal(t, EventCompleted, events[3].Type)

	run, err := store.GetAnalysisRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, "auto", run.TrendMode)

	faculty, err := store.GetCorrelations(models.ResultFilter{SubjectCode: "A", Factor: models.FactorFaculty})
	require.NoError(t, err)
	require.Len(t, faculty, 1)
	assert.Equal(t, models.StatusOK, faculty[0].Status)
	assert.Equal(t, 1, faculty[0].PeriodsWithChange)
	assert.Equal(t, 2, faculty[0].PeriodsWithoutChange)
	assert.InDelta(t, 0, *faculty[0].ImpactDiff, 1e-9)
	assert.Equal(t, models.ImpactNeutral, faculty[0].ImpactClass)

	evaluation, err := store.GetCorrelations(models.ResultFilter{SubjectCode: "A", Factor: models.FactorEvaluation})
	require.NoError(t, err)
	require.Len(t, evaluation, 1)
	assert.Equal(t, models.StatusInsufficientData, evaluation[0].Status)
	assert.Nil(t, evaluation[0].MeanDeltaWithChange)

	// A single-year subject has no correlation rows, only an insufficient trend.
	none, err := store.GetCorrelations(models.ResultFilter{SubjectCode: "B"})
	require.NoError(t, err)
	assert.Empty(t, none)

	trends, err := store.GetTrends(models.ResultFilter{SubjectCode: "B"})
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, models.StatusInsufficientData, trends[0].Status)

	trends, err = store.GetTrends(models.ResultFilter{SubjectCode: "A"})
	require.NoError(t, err)
	assert.Equal(t, models.TrendImproving, trends[0].Classification)
	assert.InDelta(t, 5.0, trends[0].Slope, 1e-9)

	global, err := store.GetInsights(models.ResultFilter{Scope: models.ScopeGlobal})
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Contains(t, global[0].Text, "1 subjects improving")
}

func TestRunSubjectFilter(t *testing.T) {
	store := seed(t)
	summary, err := newRunner(store, nil).Run(context.Background(), Options{SubjectCode: "A"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SubjectsTotal)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRunAddsNarrative(t *testing.T) {
	store := seed(t)
	summary, err := newRunner(store, stubNarrator{text: "Performance is rising."}).Run(context.Background(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Insights)

	insights, err := store.GetInsights(models.ResultFilter{Scope: models.ScopeGlobal})
	require.NoError(t, err)
	var kinds []string
	for _, in := range insights {
		kinds = append(kinds, in.Kind)
	}
	assert.ElementsMatch(t, []string{models.InsightKindSummary, models.InsightKindNarrative}, kinds)
}

func TestRunNarratorFailureIsNotFatal(t *testing.T) {
	store := seed(t)
	summary, err := newRunner(store, stubNarrator{err: errors.New("quota")}).Run(context.Background(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Insights)
}

func TestRunUsesDefaultMetric(t *testing.T) {
	store := &fakeStore{records: []models.SubjectYearRecord{record("A", "2020-21", 50), record("A", "2021-22", 60)}}

	summary, err := newRunner(store, nil).WithDefaultMetric(analysis.MetricSuccess).Run(context.Background(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, analysis.MetricSuccess, summary.Metric)
	require.Len(t, store.created, 1)
	assert.Equal(t, analysis.MetricSuccess, store.created[0].Metric)

	summary, err = newRunner(store, nil).WithDefaultMetric("dropout").Run(context.Background(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, analysis.MetricPerformance, summary.Metric)

	summary, err = newRunner(store, nil).WithDefaultMetric(analysis.MetricSuccess).
		Run(context.Background(), Options{Metric: analysis.MetricAbsenteeism}, nil)
	require.NoError(t, err)
	assert.Equal(t, analysis.MetricAbsenteeism, summary.Metric)
}

func TestRunRecordsFiltersAndSeries(t *testing.T) {
	store := seed(t)
	first := func(year string, passed int) models.SubjectYearRecord {
		rec := record("C", year, passed)
		rec.Semester = "1S"
		require.NoError(t, analysis.ApplyRates(&rec))
		return rec
	}
	_, err := store.UpsertRecords([]models.SubjectYearRecord{
		first("2021-22", 50), first("2022-23", 60),
		record("C", "2021-22", 90), record("C", "2022-23", 20),
	})
	require.NoError(t, err)

	_, err = newRunner(store, nil).Run(context.Background(), Options{SubjectCode: "C", Semester: "1S"}, nil)
	require.NoError(t, err)

	run, err := store.GetAnalysisRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "C", run.SubjectFilter)
	assert.Equal(t, "1S", run.Semester)

	trends, err := store.GetTrends(models.ResultFilter{AnalysisID: "run-1", SubjectCode: "C"})
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, []models.SeriesPoint{{Year: "2021-22", Value: 50}, {Year: "2022-23", Value: 60}}, trends[0].Series)
}

func TestRunExtendsSeriesWithHistoricalRates(t *testing.T) {
	store := &fakeStore{
		records: []models.SubjectYearRecord{record("B", "2022-23", 40)},
		history: []models.HistoricalRate{
			{SubjectCode: "B", AcademicYear: "2020-21", Semester: "2S", Metric: analysis.MetricPerformance, Value: 30},
			{SubjectCode: "B", AcademicYear: "2021-22", Semester: "2S", Metric: analysis.MetricPerformance, Value: 35},
			{SubjectCode: "B", AcademicYear: "2022-23", Semester: "2S", Metric: analysis.MetricPerformance, Value: 99},
			{SubjectCode: "B", AcademicYear: "2019-20", Semester: "2S", Metric: analysis.MetricSuccess, Value: 70},
		},
	}

	summary, err := newRunner(store, nil).Run(context.Background(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Skipped)

	require.NotNil(t, store.committed)
	require.Len(t, store.committed.Trends, 1)
	trend := store.committed.Trends[0]
	assert.Equal(t, 3, trend.Points)
	assert.Equal(t, "2020-21", trend.FirstYear)
	assert.InDelta(t, 40.0, trend.LastValue, 1e-9)
	require.Len(t, trend.Series, 3)
}

func TestRunRejectsUnknownMetric(t *testing.T) {
	_, err := newRunner(seed(t), nil).Run(context.Background(), Options{Metric: "grade"}, nil)
	assert.Error(t, err)
}

// fakeStore feeds records that bypassed ingestion checks and can fail commits.
type fakeStore struct {
	records   []models.SubjectYearRecord
	history   []models.HistoricalRate
	commitErr error
	created   []models.AnalysisRun
	committed *models.AnalysisBatch
	failed    map[string]string
}

func (s *fakeStore) GetRecords(models.RecordFilter) ([]models.SubjectYearRecord, error) {
	return s.records, nil
}

func (s *fakeStore) GetFacultySnapshots(string) ([]models.FacultySnapshot, error) { return nil, nil }

func (s *fakeStore) GetEvaluationSnapshots(string) ([]models.EvaluationSnapshot, error) {
	return nil, nil
}

func (s *fakeStore) GetHistoricalRates(models.HistoryFilter) ([]models.HistoricalRate, error) {
	return s.history, nil
}

func (s *fakeStore) CreateAnalysisRun(run *models.AnalysisRun) error {
	s.created = append(s.created, *run)
	return nil
}

func (s *fakeStore) CommitAnalysis(batch *models.AnalysisBatch) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committed = batch
	return nil
}

func (s *fakeStore) FailAnalysisRun(id, reason string) error {
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[id] = reason
	return nil
}

func TestRunIsolatesSubjectFailures(t *testing.T) {
	store := &fakeStore{records: []models.SubjectYearRecord{
		record("A", "2020-21", 50),
		record("A", "2021-22", 60),
		{SubjectCode: "Z", AcademicYear: "2020-21", Semester: "2S", Enrolled: 10, Participated: 20, Passed: 5},
		{SubjectCode: "Z", AcademicYear: "2021-22", Semester: "2S", Enrolled: 10, Participated: 10, Passed: 5},
	}}

	summary, err := newRunner(store, nil).Run(context.Background(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "Z", summary.Failures[0].SubjectCode)

	require.NotNil(t, store.committed)
	assert.Equal(t, 1, store.committed.Run.Failed)
	for _, tr := range store.committed.Trends {
		assert.NotEqual(t, "Z", tr.SubjectCode)
	}
}

func TestRunCommitFailureMarksRunFailed(t *testing.T) {
	store := &fakeStore{
		records:   []models.SubjectYearRecord{record("A", "2020-21", 50), record("A", "2021-22", 60)},
		commitErr: errors.New("database is locked"),
	}
	var last Event
	summary, err := newRunner(store, nil).Run(context.Background(), Options{}, func(e Event) { last = e })
	require.ErrorContains(t, err, "database is locked")
	assert.Equal(t, models.RunFailed, summary.Status)
	assert.Contains(t, store.failed["run-1"], "database is locked")
	assert.Equal(t, EventFailed, last.Type)
}

func TestRunCancelled(t *testing.T) {
	store := &fakeStore{records: []models.SubjectYearRecord{record("A", "2020-21", 50)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRunner(store, nil).Run(ctx, Options{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, store.failed, "run-1")
	assert.Nil(t, store.committed)
}
