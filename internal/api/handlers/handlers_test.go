package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/extraction"
	"github.com/henny-hen/DASOS-backend/internal/pipeline"
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
		{SubjectCode: "A", AcademicYear: "2019-20", Semester: "2S", Faculty: []string{"X"}},
		{SubjectCode: "A", AcademicYear: "2020-21", Semester: "2S", Faculty: []string{"X"}},
		{SubjectCode: "A", AcademicYear: "2021-22", Semester: "2S", Faculty: []string{"Y"}},
		{SubjectCode: "A", AcademicYear: "2022-23", Semester: "2S", Faculty: []string{"Y"}},
	} {
		s := s
		require.NoError(t, c.UpsertFacultySnapshot(&s))
	}
	return c
}

func newTestApp(t *testing.T) (*fiber.App, *sqlite.Client) {
	t.Helper()
	store := seed(t)

	trends := analysis.NewTrendAnalyzer(analysis.MonotonicEstimator{}, 0.05)
	runner := pipeline.NewRunner(store, trends, analysis.NewCorrelationEngine(0.05), "auto", nil)
	guard := NewRunGuard(runner)

	app := fiber.New()
	Register(app.Group("/api/v1"), Handlers{
		Subjects:  NewSubjectsHandler(store),
		Results:   NewResultsHandler(store),
		Records:   NewRecordsHandler(extraction.NewProcessor(store)),
		Analysis:  NewAnalysisHandler(guard),
		WebSocket: NewWebSocketHandler(guard),
	})
	return app, store
}

func do(t *testing.T, app *fiber.App, method, target, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out), target)
	}
	return resp.StatusCode
}

func runAnalysis(t *testing.T, app *fiber.App) pipeline.Summary {
	t.Helper()
	var summary pipeline.Summary
	require.Equal(t, fiber.StatusCreated, do(t, app, "POST", "/api/v1/analyses", "", &summary))
	return summary
}

func TestHealthEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	var body map[string]any
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/health", "", &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/ready", "", &body))
	assert.Equal(t, "ready", body["status"])
}

func TestResultsMissingBeforeFirstAnalysis(t *testing.T) {
	app, _ := newTestApp(t)

	for _, target := range []string{
		"/api/v1/correlations",
		"/api/v1/trends",
		"/api/v1/faculty/changes",
		"/api/v1/insights/global",
		"/api/v1/analyses/6f1c3a52-8b0e-4d8e-9d55-0c8f0b4f7e21",
	} {
		var body map[string]any
		assert.Equal(t, fiber.StatusNotFound, do(t, app, "GET", target, "", &body), target)
		assert.Contains(t, body["error"], "not found")
	}
}

func TestRunAndReadResults(t *testing.T) {
	app, _ := newTestApp(t)

	summary := runAnalysis(t, app)
	assert.Equal(t, models.RunCompleted, summary.Status)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)

	var correlations []models.CorrelationResult
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/correlations?subject_code=A&factor=faculty", "", &correlations))
	require.Len(t, correlations, 1)
	assert.Equal(t, summary.AnalysisID, correlations[0].AnalysisID)
	assert.Equal(t, 1, correlations[0].PeriodsWithChange)

	do(t, app, "GET", "/api/v1/correlations?subject_code=ALL", "", &correlations)
	assert.Len(t, correlations, 2)

	var changes []models.ChangeEvent
	do(t, app, "GET", "/api/v1/faculty/changes?subject_code=A", "", &changes)
	assert.Len(t, changes, 3)
	do(t, app, "GET", "/api/v1/evaluation/changes?subject_code=A", "", &changes)
	assert.Empty(t, changes)

	var trends []models.TrendResult
	do(t, app, "GET", "/api/v1/trends?subject_code=B", "", &trends)
	require.Len(t, trends, 1)
	assert.Equal(t, models.StatusInsufficientData, trends[0].Status)

	var insights []models.Insight
	do(t, app, "GET", "/api/v1/insights/global", "", &insights)
	require.Len(t, insights, 1)
	assert.Equal(t, models.ScopeGlobal, insights[0].Scope)
	do(t, app, "GET", "/api/v1/insights/subjects?subject_code=A", "", &insights)
	require.Len(t, insights, 1)
	assert.Equal(t, "A", *insights[0].SubjectCode)

	var runs []models.AnalysisRun
	do(t, app, "GET", "/api/v1/analyses", "", &runs)
	require.Len(t, runs, 1)

	var run models.AnalysisRun
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/analyses/"+summary.AnalysisID, "", &run))
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 2, run.SubjectsTotal)

	var stats models.DatabaseStats
	do(t, app, "GET", "/api/v1/stats", "", &stats)
	assert.Equal(t, 2, stats.TotalSubjects)
	assert.Equal(t, 1, stats.CompletedAnalyses)
	assert.Equal(t, summary.AnalysisID, stats.LatestAnalysisID)
}

func TestSingleYearSubjectReportsInsufficientData(t *testing.T) {
	app, _ := newTestApp(t)
	summary := runAnalysis(t, app)

	for _, target := range []string{
		"/api/v1/correlations?subject_code=B",
		"/api/v1/faculty/changes?subject_code=B",
		"/api/v1/evaluation/changes?subject_code=B",
		"/api/v1/insights/subjects?subject_code=B",
	} {
		var body map[string]any
		require.Equal(t, fiber.StatusOK, do(t, app, "GET", target, "", &body), target)
		assert.Equal(t, string(models.StatusInsufficientData), body["status"], target)
		assert.Equal(t, "B", body["subject_code"], target)
		assert.Equal(t, summary.AnalysisID, body["analysis_id"], target)
		assert.EqualValues(t, 1, body["points"], target)
	}

	var body map[string]any
	assert.Equal(t, fiber.StatusNotFound, do(t, app, "GET", "/api/v1/correlations?subject_code=Z", "", &body))
	assert.Contains(t, body["error"], "subject Z not found")
}

func TestRunAnalysisRejectsBadRequest(t *testing.T) {
	app, _ := newTestApp(t)

	var body map[string]any
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, "POST", "/api/v1/analyses", `{"metric":"dropout"}`, &body))
	assert.Contains(t, body["error"], "unknown metric")
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, "POST", "/api/v1/analyses", `{"subject_code":"a b"}`, &body))
}

func TestRunAnalysisSingleSubject(t *testing.T) {
	app, _ := newTestApp(t)

	var summary pipeline.Summary
	require.Equal(t, fiber.StatusCreated, do(t, app, "POST", "/api/v1/analyses", `{"subject_code":"A"}`, &summary))
	assert.Equal(t, 1, summary.SubjectsTotal)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestSubjects(t *testing.T) {
	app, _ := newTestApp(t)

	var subjects []models.SubjectSummary
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/subjects", "", &subjects))
	require.Len(t, subjects, 2)
	assert.Equal(t, "A", subjects[0].SubjectCode)
	assert.Equal(t, 4, subjects[0].Years)

	do(t, app, "GET", "/api/v1/subjects?academic_year=2019-20", "", &subjects)
	assert.Len(t, subjects, 1)

	var detail struct {
		SubjectCode string                     `json:"subject_code"`
		SubjectName string                     `json:"subject_name"`
		Records     []models.SubjectYearRecord `json:"records"`
	}
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/subjects/A", "", &detail))
	assert.Equal(t, "Subject A", detail.SubjectName)
	assert.Len(t, detail.Records, 4)

	do(t, app, "GET", "/api/v1/subjects/A?academic_year=2021-22", "", &detail)
	require.Len(t, detail.Records, 1)
	assert.InDelta(t, 60.0, detail.Records[0].PerformanceRate, 1e-9)

	var body map[string]any
	assert.Equal(t, fiber.StatusNotFound, do(t, app, "GET", "/api/v1/subjects/Z", "", &body))
}

func TestHistorical(t *testing.T) {
	app, _ := newTestApp(t)

	var body struct {
		Status models.ResultStatus `json:"status"`
		Metric string              `json:"metric"`
		Points []analysis.Point    `json:"points"`
	}
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/subjects/A/historical", "", &body))
	assert.Equal(t, models.StatusOK, body.Status)
	assert.Equal(t, analysis.MetricPerformance, body.Metric)
	require.Len(t, body.Points, 4)
	assert.Equal(t, "2019-20", body.Points[0].Year)
	assert.InDelta(t, 65.0, body.Points[3].Value, 1e-9)

	do(t, app, "GET", "/api/v1/subjects/B/historical", "", &body)
	assert.Equal(t, models.StatusInsufficientData, body.Status)
	assert.Len(t, body.Points, 1)

	var errBody map[string]any
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, "GET", "/api/v1/subjects/A/historical?metric=grades", "", &errBody))
}

func TestReportSectionsExtendSubjects(t *testing.T) {
	app, store := newTestApp(t)

	_, err := store.UpsertStudentProfiles([]models.StudentProfile{
		{SubjectCode: "A", AcademicYear: "2022-23", Semester: "2S", TotalEnrolled: 100, FirstTime: 70, PartialDedication: 5},
		{SubjectCode: "A", AcademicYear: "2021-22", Semester: "2S", TotalEnrolled: 90, FirstTime: 60, PartialDedication: 2},
	})
	require.NoError(t, err)
	_, err = store.UpsertHistoricalRates([]models.HistoricalRate{
		{SubjectCode: "B", AcademicYear: "2020-21", Semester: "2S", Metric: analysis.MetricPerformance, Value: 30, ReportYear: "2022-23"},
		{SubjectCode: "B", AcademicYear: "2021-22", Semester: "2S", Metric: analysis.MetricPerformance, Value: 35, ReportYear: "2022-23"},
	})
	require.NoError(t, err)
	require.NoError(t, store.UpsertCourseInfo(&models.CourseInfo{
		AcademicYear: "2022-23", Semester: "2S", PlanCode: "10II", PlanTitle: "Grado en Ingeniería Informática",
	}))

	var detail struct {
		Profiles []models.StudentProfile `json:"profiles"`
	}
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/subjects/A", "", &detail))
	assert.Len(t, detail.Profiles, 2)
	do(t, app, "GET", "/api/v1/subjects/A?academic_year=2022-23", "", &detail)
	require.Len(t, detail.Profiles, 1)
	assert.Equal(t, 70, detail.Profiles[0].FirstTime)

	var series struct {
		Status      models.ResultStatus `json:"status"`
		Points      []analysis.Point    `json:"points"`
		QuotedYears int                 `json:"quoted_years"`
	}
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/subjects/B/historical", "", &series))
	assert.Equal(t, models.StatusOK, series.Status)
	require.Len(t, series.Points, 3)
	assert.Equal(t, "2020-21", series.Points[0].Year)
	assert.Equal(t, 2, series.QuotedYears)

	var courses []models.CourseInfo
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/courses", "", &courses))
	require.Len(t, courses, 1)
	assert.Equal(t, "Grado en Ingeniería Informática", courses[0].PlanTitle)

	summary := runAnalysis(t, app)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Skipped)

	var trends []models.TrendResult
	do(t, app, "GET", "/api/v1/trends?subject_code=B", "", &trends)
	require.Len(t, trends, 1)
	assert.Equal(t, 3, trends[0].Points)
	assert.Len(t, trends[0].Series, 3)
}

func TestSearch(t *testing.T) {
	app, _ := newTestApp(t)

	var subjects []models.SubjectSummary
	do(t, app, "GET", "/api/v1/search?q=subject%20b", "", &subjects)
	require.Len(t, subjects, 1)
	assert.Equal(t, "B", subjects[0].SubjectCode)

	do(t, app, "GET", "/api/v1/search?q=", "", &subjects)
	assert.Empty(t, subjects)
}

func TestIngestRecords(t *testing.T) {
	app, _ := newTestApp(t)

	body := `{"source":"manual","records":[
		{"subject_code":105000005,"subject_name":"Cálculo","academic_year":"2022/23","semester":"Segundo","enrolled":"120","participated":100,"passed":60},
		{"subject_code":"105000012","academic_year":"2022-23","semester":"2S","enrolled":"many","participated":1,"passed":1},
		{"subject_code":"105000013","academic_year":"2022-23","semester":"2S","enrolled":10,"participated":12,"passed":1}
	]}`

	var summary extraction.Summary
	assert.Equal(t, fiber.StatusCreated, do(t, app, "POST", "/api/v1/records", body, &summary))
	assert.Equal(t, "manual", summary.Source)
	assert.Equal(t, 3, summary.Parsed)
	assert.Equal(t, 1, summary.Stored)
	assert.Equal(t, 2, summary.Rejected)
	require.Len(t, summary.Rejections, 2)
	assert.Contains(t, summary.Rejections[1].Reason, "enrolled")

	var detail struct {
		Records []models.SubjectYearRecord `json:"records"`
	}
	assert.Equal(t, fiber.StatusOK, do(t, app, "GET", "/api/v1/subjects/105000005?academic_year=2022-23", "", &detail))
	require.Len(t, detail.Records, 1)
	assert.Equal(t, "2S", detail.Records[0].Semester)
	assert.InDelta(t, 50.0, detail.Records[0].PerformanceRate, 1e-9)
}

func TestIngestRecordsRequiresRows(t *testing.T) {
	app, _ := newTestApp(t)

	var body map[string]any
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, "POST", "/api/v1/records", `{"records":[]}`, &body))
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, "POST", "/api/v1/records", `{"records":`, &body))
}

type blockingAnalyzer struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingAnalyzer) Run(context.Context, pipeline.Options, pipeline.ProgressFunc) (*pipeline.Summary, error) {
	close(b.started)
	<-b.release
	return &pipeline.Summary{Status: models.RunCompleted}, nil
}

func TestRunGuardAllowsOneRun(t *testing.T) {
	analyzer := blockingAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
	guard := NewRunGuard(analyzer)

	done := make(chan error, 1)
	go func() {
		_, err := guard.Run(context.Background(), pipeline.Options{}, nil)
		done <- err
	}()
	<-analyzer.started

	_, err := guard.Run(context.Background(), pipeline.Options{}, nil)
	assert.ErrorIs(t, err, ErrAnalysisRunning)

	close(analyzer.release)
	require.NoError(t, <-done)
}

func TestDecodeRecord(t *testing.T) {
	rec, err := decodeRecord(map[string]any{
		"subject_code": "X1", "academic_year": "2021/22", "semester": "primer",
		"enrolled": 10.0, "participated": "8", "passed": 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "2021-22", rec.AcademicYear)
	assert.Equal(t, "1S", rec.Semester)
	assert.Equal(t, 10, rec.Enrolled)
	assert.Equal(t, 8, rec.Participated)
	assert.Equal(t, 0, rec.Credits)

	_, err = decodeRecord(map[string]any{"subject_code": "X1", "enrolled": 1, "participated": 1})
	assert.ErrorContains(t, err, "passed is required")

	rec, err = decodeRecord(map[string]any{
		"subject_code": "X1", "enrolled": "010", "participated": " 08 ", "passed": 3.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Enrolled)
	assert.Equal(t, 8, rec.Participated)
	assert.Equal(t, 3, rec.Passed)

	for _, bad := range []any{9.9, "9.9", "0x10", true, "ten"} {
		_, err = decodeRecord(map[string]any{
			"subject_code": "X1", "enrolled": bad, "participated": 1, "passed": 1,
		})
		assert.ErrorContains(t, err, "enrolled: not a count", "%v", bad)
	}
}
