package models

import "time"

// GlobalSubjectCode marks institution-wide results.
const GlobalSubjectCode = "ALL"

type Factor string

const (
	FactorFaculty    Factor = "faculty"
	FactorEvaluation Factor = "evaluation"
)

func (f Factor) Valid() bool {
	return f == FactorFaculty || f == FactorEvaluation
}

type ImpactClass string

const (
	ImpactPositive ImpactClass = "positive"
	ImpactNegative ImpactClass = "negative"
	ImpactNeutral  ImpactClass = "neutral"
)

type TrendClass string

const (
	TrendImproving TrendClass = "improving"
	TrendStable    TrendClass = "stable"
	TrendDeclining TrendClass = "declining"
)

type ResultStatus string

const (
	StatusOK               ResultStatus = "ok"
	StatusInsufficientData ResultStatus = "insufficient_data"
)

type TrendMode string

const (
	TrendModeBasic    TrendMode = "basic"
	TrendModeAdvanced TrendMode = "advanced"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

type InsightScope string

const (
	ScopeSubject InsightScope = "subject"
	ScopeGlobal  InsightScope = "global"
)

const (
	InsightKindSummary   = "summary"
	InsightKindNarrative = "narrative"
)

type SubjectYearRecord struct {
	SubjectCode     string    `json:"subject_code"`
	SubjectName     string    `json:"subject_name,omitempty"`
	PlanCode        string    `json:"plan_code,omitempty"`
	Credits         int       `json:"credits,omitempty"`
	AcademicYear    string    `json:"academic_year"`
	Semester        string    `json:"semester"`
	Enrolled        int       `json:"enrolled"`
	Participated    int       `json:"participated"`
	Passed          int       `json:"passed"`
	PerformanceRate float64   `json:"performance_rate"`
	SuccessRate     float64   `json:"success_rate"`
	AbsenteeismRate float64   `json:"absenteeism_rate"`
	CreatedAt       time.Time `json:"created_at"`
}

// CourseInfo describes the report a batch of records came from.
type CourseInfo struct {
	AcademicYear string    `json:"academic_year"`
	Semester     string    `json:"semester"`
	PlanCode     string    `json:"plan_code,omitempty"`
	PlanTitle    string    `json:"plan_title,omitempty"`
	ReportDate   string    `json:"report_date,omitempty"`
	Source       string    `json:"source,omitempty"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// StudentProfile is the enrolment breakdown a report gives per subject.
type StudentProfile struct {
	SubjectCode       string `json:"subject_code"`
	AcademicYear      string `json:"academic_year"`
	Semester          string `json:"semester"`
	TotalEnrolled     int    `json:"total_enrolled"`
	FirstTime         int    `json:"first_time"`
	PartialDedication int    `json:"partial_dedication"`
}

// HistoricalRate is a rate a report quotes for an earlier year. Reports only
// publish the percentage for those years, not the underlying counts.
type HistoricalRate struct {
	SubjectCode  string  `json:"subject_code"`
	AcademicYear string  `json:"academic_year"`
	Semester     string  `json:"semester"`
	Metric       string  `json:"metric"`
	Value        float64 `json:"value"`
	// ReportYear is the academic year of the report that quoted the value.
	ReportYear string `json:"report_year,omitempty"`
}

type HistoryFilter struct {
	SubjectCode string
	Semester    string
	Metric      string
}

type RecordFilter struct {
	SubjectCode  string
	AcademicYear string
	Semester     string
	PlanCode     string
}

type FacultySnapshot struct {
	SubjectCode  string    `json:"subject_code"`
	AcademicYear string    `json:"academic_year"`
	Semester     string    `json:"semester"`
	Faculty      []string  `json:"faculty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

type EvaluationSnapshot struct {
	SubjectCode  string    `json:"subject_code"`
	AcademicYear string    `json:"academic_year"`
	Semester     string    `json:"semester"`
	Methods      []string  `json:"methods"`
	FetchedAt    time.Time `json:"fetched_at"`
}

type ChangeEvent struct {
	AnalysisID  string   `json:"analysis_id,omitempty"`
	SubjectCode string   `json:"subject_code"`
	Year1       string   `json:"year1"`
	Year2       string   `json:"year2"`
	Kind        Factor   `json:"kind"`
	Added       []string `json:"added"`
	Removed     []string `json:"removed"`
	Changed     bool     `json:"changed"`
	// Magnitude is the percentage of the year1 set that changed; faculty only.
	Magnitude *float64 `json:"magnitude,omitempty"`
}

type PerformancePeriod struct {
	SubjectCode string  `json:"subject_code"`
	Year1       string  `json:"year1"`
	Year2       string  `json:"year2"`
	MetricDelta float64 `json:"metric_delta"`
}

type CorrelationResult struct {
	AnalysisID             string       `json:"analysis_id"`
	SubjectCode            string       `json:"subject_code"`
	Factor                 Factor       `json:"factor"`
	Status                 ResultStatus `json:"status"`
	PeriodsWithChange      int          `json:"periods_with_change"`
	PeriodsWithoutChange   int          `json:"periods_without_change"`
	MeanDeltaWithChange    *float64     `json:"mean_delta_with_change"`
	MeanDeltaWithoutChange *float64     `json:"mean_delta_without_change"`
	ImpactDiff             *float64     `json:"impact_diff"`
	TStatistic             *float64     `json:"t_statistic,omitempty"`
	PValue                 *float64     `json:"p_value,omitempty"`
	Significant            *bool        `json:"significant,omitempty"`
	CohensD                *float64     `json:"cohens_d,omitempty"`
	EffectSize             string       `json:"effect_size,omitempty"`
	ImpactClass            ImpactClass  `json:"impact_class,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
}

type SeriesPoint struct {
	Year  string  `json:"year"`
	Value float64 `json:"value"`
}

type TrendResult struct {
	AnalysisID        string       `json:"analysis_id"`
	SubjectCode       string       `json:"subject_code"`
	Metric            string       `json:"metric"`
	Status            ResultStatus `json:"status"`
	Points            int          `json:"points"`
	FirstYear         string       `json:"first_year,omitempty"`
	LastYear          string       `json:"last_year,omitempty"`
	FirstValue        float64      `json:"first_value"`
	LastValue         float64      `json:"last_value"`
	Slope             float64      `json:"slope"`
	Intercept         float64      `json:"intercept"`
	RSquared          float64      `json:"r_squared"`
	SlopePValue       *float64     `json:"slope_p_value,omitempty"`
	MannKendallTrend  *string      `json:"mann_kendall_trend,omitempty"`
	MannKendallPValue *float64     `json:"mann_kendall_p_value,omitempty"`
	TheilSenSlope     *float64     `json:"theil_sen_slope,omitempty"`
	YearOverYear      []TrendClass `json:"year_over_year"`
	Classification    TrendClass   `json:"classification,omitempty"`
	Mode              TrendMode    `json:"mode"`
	// Series is the yearly series the trend was computed on.
	Series    []SeriesPoint `json:"series"`
	CreatedAt time.Time     `json:"created_at"`
}

type Insight struct {
	AnalysisID        string         `json:"analysis_id"`
	Scope             InsightScope   `json:"scope"`
	SubjectCode       *string        `json:"subject_code"`
	Kind              string         `json:"kind"`
	Text              string         `json:"text"`
	SupportingMetrics map[string]any `json:"supporting_metrics"`
	CreatedAt         time.Time      `json:"created_at"`
}

type SubjectFailure struct {
	SubjectCode string `json:"subject_code"`
	Error       string `json:"error"`
}

type AnalysisRun struct {
	ID            string           `json:"id"`
	Status        RunStatus        `json:"status"`
	TrendMode     string           `json:"trend_mode"`
	Metric        string           `json:"metric"`
	SubjectFilter string           `json:"subject_filter,omitempty"`
	Semester      string           `json:"semester,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	SubjectsTotal int              `json:"subjects_total"`
	Succeeded     int              `json:"succeeded"`
	Skipped       int              `json:"skipped"`
	Failed        int              `json:"failed"`
	Error         string           `json:"error,omitempty"`
	Failures      []SubjectFailure `json:"failures,omitempty"`
}

// AnalysisBatch holds every row produced by one analysis run; it is committed atomically.
type AnalysisBatch struct {
	Run          AnalysisRun
	ChangeEvents []ChangeEvent
	Correlations []CorrelationResult
	Trends       []TrendResult
	Insights     []Insight
}

type ResultFilter struct {
	AnalysisID  string
	SubjectCode string
	Factor      Factor
	Scope       InsightScope
}

type SubjectSummary struct {
	SubjectCode string `json:"subject_code"`
	SubjectName string `json:"subject_name"`
	Years       int    `json:"years"`
}

type DatabaseStats struct {
	TotalSubjects       int      `json:"total_subjects"`
	TotalRecords        int      `json:"total_records"`
	TotalAcademicYears  int      `json:"total_academic_years"`
	AcademicYears       []string `json:"academic_years"`
	HistoricalRates     int      `json:"historical_rates"`
	FacultySnapshots    int      `json:"faculty_snapshots"`
	EvaluationSnapshots int      `json:"evaluation_snapshots"`
	CompletedAnalyses   int      `json:"completed_analyses"`
	LatestAnalysisID    string   `json:"latest_analysis_id,omitempty"`
}
