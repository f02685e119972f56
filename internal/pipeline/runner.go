// Package pipeline executes analysis runs: it loads stored records and
// snapshots, analyses every subject in isolation and commits all results under
// one analysis id.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/metrics"
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

type Store interface {
	GetRecords(filter models.RecordFilter) ([]models.SubjectYearRecord, error)
	GetFacultySnapshots(subjectCode string) ([]models.FacultySnapshot, error)
	GetEvaluationSnapshots(subjectCode string) ([]models.EvaluationSnapshot, error)
	GetHistoricalRates(filter models.HistoryFilter) ([]models.HistoricalRate, error)
	CreateAnalysisRun(run *models.AnalysisRun) error
	CommitAnalysis(batch *models.AnalysisBatch) error
	FailAnalysisRun(id, reason string) error
}

// Narrator writes an executive summary from the generated insights.
type Narrator interface {
	Narrate(ctx context.Context, global models.Insight, subjects []models.Insight) (string, error)
}

type Options struct {
	SubjectCode string
	Semester    string
	// Metric defaults to the runner's default metric.
	Metric string
}

type Summary struct {
	AnalysisID    string                  `json:"analysis_id"`
	Status        models.RunStatus        `json:"status"`
	TrendMode     string                  `json:"trend_mode"`
	Metric        string                  `json:"metric"`
	SubjectsTotal int                     `json:"subjects_total"`
	Succeeded     int                     `json:"succeeded"`
	Skipped       int                     `json:"skipped"`
	Failed        int                     `json:"failed"`
	Failures      []models.SubjectFailure `json:"failures"`
	ChangeEvents  int                     `json:"change_events"`
	Correlations  int                     `json:"correlations"`
	Trends        int                     `json:"trends"`
	Insights      int                     `json:"insights"`
	Duration      time.Duration           `json:"duration"`
}

type Runner struct {
	store     Store
	trends    *analysis.TrendAnalyzer
	engine    *analysis.CorrelationEngine
	insights  *analysis.InsightGenerator
	narrator  Narrator
	trendMode string
	metric    string
	newID     func() string
}

// NewRunner builds a runner. trendMode is the configured estimator mode and is
// recorded on each run; narrator may be nil.
func NewRunner(store Store, trends *analysis.TrendAnalyzer, engine *analysis.CorrelationEngine, trendMode string, narrator Narrator) *Runner {
	if trendMode == "" {
		trendMode = string(trends.Mode())
	}
	return &Runner{
		store:     store,
		trends:    trends,
		engine:    engine,
		insights:  analysis.NewInsightGenerator(),
		narrator:  narrator,
		trendMode: trendMode,
		metric:    analysis.MetricPerformance,
		newID:     func() string { return uuid.New().String() },
	}
}

// WithDefaultMetric sets the metric used when a run does not name one.
// Unknown metrics are ignored.
func (r *Runner) WithDefaultMetric(metric string) *Runner {
	if analysis.ValidMetric(metric) {
		r.metric = metric
	}
	return r
}

type subjectInput struct {
	code       string
	name       string
	records    []models.SubjectYearRecord
	faculty    []models.FacultySnapshot
	evaluation []models.EvaluationSnapshot
	history    []models.HistoricalRate
}

type subjectOutput struct {
	skipped bool
	trend   models.TrendResult
	periods []analysis.Period
	batch   models.AnalysisBatch
}

// Run performs one analysis. Per-subject failures are collected in the
// summary; only storage failures and cancellation end the run early, in which
// case the run is marked failed and nothing of it becomes visible.
func (r *Runner) Run(ctx context.Context, opts Options, progress ProgressFunc) (*Summary, error) {
	start := time.Now()
	if progress == nil {
		progress = func(Event) {}
	}

	metric := opts.Metric
	if metric == "" {
		metric = r.metric
	}
	if !analysis.ValidMetric(metric) {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	inputs, err := r.load(opts)
	if err != nil {
		return nil, err
	}

	run := models.AnalysisRun{
		ID:            r.newID(),
		Status:        models.RunRunning,
		TrendMode:     r.trendMode,
		Metric:        metric,
		SubjectFilter: opts.SubjectCode,
		Semester:      opts.Semester,
		StartedAt:     start,
		SubjectsTotal: len(inputs),
	}
	if err := r.store.CreateAnalysisRun(&run); err != nil {
		return nil, fmt.Errorf("failed to create analysis run: %w", err)
	}

	summary := &Summary{
		AnalysisID:    run.ID,
		Status:        models.RunRunning,
		TrendMode:     run.TrendMode,
		Metric:        metric,
		SubjectsTotal: len(inputs),
		Failures:      []models.SubjectFailure{},
	}
	progress(Event{Type: EventStarted, AnalysisID: run.ID, Total: len(inputs)})
	logger.Info("Running analysis",
		zap.String("analysis_id", run.ID),
		zap.Int("subjects", len(inputs)),
		zap.String("metric", metric),
		zap.String("trend_mode", run.TrendMode),
	)

	batch := &models.AnalysisBatch{}
	var allPeriods []analysis.Period
	var subjectInsights []models.Insight

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return summary, r.fail(run.ID, summary, start, progress, err)
		}

		out, err := r.analyzeSubject(in, metric)
		ev := Event{Type: EventSubject, AnalysisID: run.ID, SubjectCode: in.code, Index: i + 1, Total: len(inputs)}
		switch {
		case err != nil:
			summary.Failed++
			summary.Failures = append(summary.Failures, models.SubjectFailure{SubjectCode: in.code, Error: err.Error()})
			ev.Outcome, ev.Message = OutcomeFailed, err.Error()
			logger.Warn("Subject analysis failed", zap.String("subject_code", in.code), zap.Error(err))
		case out.skipped:
			summary.Skipped++
			ev.Outcome = OutcomeSkipped
		default:
			summary.Succeeded++
			ev.Outcome = OutcomeSucceeded
		}
		metrics.SubjectsAnalyzed.WithLabelValues(ev.Outcome).Inc()
		progress(ev)

		if err != nil {
			continue
		}
		batch.Trends = append(batch.Trends, out.trend)
		batch.ChangeEvents = append(batch.ChangeEvents, out.batch.ChangeEvents...)
		batch.Correlations = append(batch.Correlations, out.batch.Correlations...)
		batch.Insights = append(batch.Insights, out.batch.Insights...)
		subjectInsights = append(subjectInsights, out.batch.Insights...)
		allPeriods = append(allPeriods, out.periods...)
	}

	global := r.globalResults(allPeriods, batch)
	batch.Insights = append(batch.Insights, global)
	if r.narrator != nil {
		if narrative, ok := r.narrate(ctx, global, subjectInsights); ok {
			batch.Insights = append(batch.Insights, narrative)
		}
	}

	run.Succeeded, run.Skipped, run.Failed = summary.Succeeded, summary.Skipped, summary.Failed
	run.Failures = summary.Failures
	batch.Run = run

	if err := r.store.CommitAnalysis(batch); err != nil {
		return summary, r.fail(run.ID, summary, start, progress, fmt.Errorf("failed to commit analysis: %w", err))
	}

	summary.Status = models.RunCompleted
	summary.ChangeEvents = len(batch.ChangeEvents)
	summary.Correlations = len(batch.Correlations)
	summary.Trends = len(batch.Trends)
	summary.Insights = len(batch.Insights)
	summary.Duration = time.Since(start)

	metrics.AnalysisRunsTotal.WithLabelValues(string(models.RunCompleted)).Inc()
	metrics.AnalysisDuration.WithLabelValues(string(models.RunCompleted)).Observe(summary.Duration.Seconds())
	progress(Event{Type: EventCompleted, AnalysisID: run.ID, Total: len(inputs), Summary: summary})

	logger.Info("Analysis completed",
		zap.String("analysis_id", run.ID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (r *Runner) fail(id string, summary *Summary, start time.Time, progress ProgressFunc, cause error) error {
	summary.Status = models.RunFailed
	summary.Duration = time.Since(start)
	if err := r.store.FailAnalysisRun(id, cause.Error()); err != nil {
		logger.Error("Failed to mark analysis run failed", zap.String("analysis_id", id), zap.Error(err))
	}
	metrics.AnalysisRunsTotal.WithLabelValues(string(models.RunFailed)).Inc()
	metrics.AnalysisDuration.WithLabelValues(string(models.RunFailed)).Observe(summary.Duration.Seconds())
	progress(Event{Type: EventFailed, AnalysisID: id, Message: cause.Error(), Summary: summary})
	return cause
}

// load groups records and snapshots per subject, ordered by subject code.
func (r *Runner) load(opts Options) ([]subjectInput, error) {
	records, err := r.store.GetRecords(models.RecordFilter{SubjectCode: opts.SubjectCode, Semester: opts.Semester})
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	faculty, err := r.store.GetFacultySnapshots(opts.SubjectCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load faculty snapshots: %w", err)
	}
	evaluation, err := r.store.GetEvaluationSnapshots(opts.SubjectCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load evaluation snapshots: %w", err)
	}
	history, err := r.store.GetHistoricalRates(models.HistoryFilter{SubjectCode: opts.SubjectCode, Semester: opts.Semester})
	if err != nil {
		return nil, fmt.Errorf("failed to load historical rates: %w", err)
	}

	bySubject := map[string]*subjectInput{}
	get := func(code string) *subjectInput {
		in, ok := bySubject[code]
		if !ok {
			in = &subjectInput{code: code}
			bySubject[code] = in
		}
		return in
	}

	for _, rec := range records {
		in := get(rec.SubjectCode)
		in.records = append(in.records, rec)
		if rec.SubjectName != "" {
			in.name = rec.SubjectName
		}
	}
	for _, s := range faculty {
		if in, ok := bySubject[s.SubjectCode]; ok && semesterMatches(opts.Semester, s.Semester) {
			in.faculty = append(in.faculty, s)
		}
	}
	for _, s := range evaluation {
		if in, ok := bySubject[s.SubjectCode]; ok && semesterMatches(opts.Semester, s.Semester) {
			in.evaluation = append(in.evaluation, s)
		}
	}
	for _, h := range history {
		if in, ok := bySubject[h.SubjectCode]; ok {
			in.history = append(in.history, h)
		}
	}

	out := make([]subjectInput, 0, len(bySubject))
	for _, in := range bySubject {
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })
	return out, nil
}

func semesterMatches(want, got string) bool {
	return want == "" || want == got
}

// analyzeSubject never panics: a panic becomes the subject's error.
func (r *Runner) analyzeSubject(in subjectInput, metric string) (out subjectOutput, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic analysing %s: %v", in.code, p)
		}
	}()

	points, err := analysis.BuildSeries(in.records, metric)
	if err != nil {
		return out, err
	}
	points = analysis.ExtendSeries(points, in.history, metric)

	out.trend, err = r.trends.Analyze(in.code, metric, points)
	if err != nil && !errors.Is(err, analysis.ErrInsufficientData) {
		return out, err
	}
	out.trend.Series = points

	out.periods, err = analysis.BuildPeriods(in.code, points, in.faculty, in.evaluation)
	if err != nil {
		return out, err
	}
	if len(out.periods) == 0 {
		out.skipped = true
		return out, nil
	}

	subject := analysis.SubjectAnalysis{
		SubjectCode: in.code,
		SubjectName: in.name,
		Trend:       &out.trend,
		Periods:     out.periods,
	}
	for _, factor := range []models.Factor{models.FactorFaculty, models.FactorEvaluation} {
		res, err := r.engine.Correlate(in.code, factor, out.periods)
		if err != nil && !errors.Is(err, analysis.ErrInsufficientData) {
			return out, err
		}
		out.batch.Correlations = append(out.batch.Correlations, res)
		if factor == models.FactorFaculty {
			subject.Faculty = &res
		} else {
			subject.Evaluation = &res
		}
	}

	for _, p := range out.periods {
		if p.Faculty != nil {
			out.batch.ChangeEvents = append(out.batch.ChangeEvents, *p.Faculty)
		}
		if p.Evaluation != nil {
			out.batch.ChangeEvents = append(out.batch.ChangeEvents, *p.Evaluation)
		}
	}

	out.batch.Insights = append(out.batch.Insights, r.insights.SubjectInsight(subject))
	return out, nil
}

// globalResults appends the institution-wide correlations to batch and returns
// the global insight.
func (r *Runner) globalResults(periods []analysis.Period, batch *models.AnalysisBatch) models.Insight {
	var pooled [2]*models.CorrelationResult
	for i, factor := range []models.Factor{models.FactorFaculty, models.FactorEvaluation} {
		res, err := r.engine.CorrelateGlobal(factor, periods)
		if err != nil && !errors.Is(err, analysis.ErrInsufficientData) {
			logger.Warn("Global correlation failed", zap.String("factor", string(factor)), zap.Error(err))
			continue
		}
		batch.Correlations = append(batch.Correlations, res)
		pooled[i] = &res
	}
	return r.insights.GlobalInsight(batch.Trends, pooled[0], pooled[1])
}

func (r *Runner) narrate(ctx context.Context, global models.Insight, subjects []models.Insight) (models.Insight, bool) {
	text, err := r.narrator.Narrate(ctx, global, subjects)
	if err != nil {
		logger.Warn("Narrative summary unavailable", zap.Error(err))
		return models.Insight{}, false
	}
	return models.Insight{
		Scope:             models.ScopeGlobal,
		Kind:              models.InsightKindNarrative,
		Text:              text,
		SupportingMetrics: map[string]any{"source": "llm"},
	}, true
}
