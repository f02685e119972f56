package sqlite

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

// UpsertCourseInfo records the report a batch came from. A later report for
// the same year, semester and plan replaces the earlier one.
func (c *Client) UpsertCourseInfo(info *models.CourseInfo) error {
	_, err := c.db.Exec(`
		INSERT INTO course_info (academic_year, semester, plan_code, plan_title, report_date, source, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(academic_year, semester, plan_code) DO UPDATE SET
			plan_title = COALESCE(NULLIF(excluded.plan_title, ''), course_info.plan_title),
			report_date = COALESCE(NULLIF(excluded.report_date, ''), course_info.report_date),
			source = excluded.source,
			ingested_at = excluded.ingested_at
	`, info.AcademicYear, info.Semester, info.PlanCode, info.PlanTitle, info.ReportDate, info.Source,
		unixOrNow(info.IngestedAt))
	if err != nil {
		return persistErr("upsert course info", err)
	}
	return nil
}

func (c *Client) ListCourseInfo() ([]models.CourseInfo, error) {
	rows, err := c.db.Query(`
		SELECT academic_year, semester, plan_code, COALESCE(plan_title, ''), COALESCE(report_date, ''),
			COALESCE(source, ''), ingested_at
		FROM course_info
		ORDER BY academic_year, semester, plan_code
	`)
	if err != nil {
		return nil, persistErr("list course info", err)
	}
	defer rows.Close()

	out := []models.CourseInfo{}
	for rows.Next() {
		var ci models.CourseInfo
		var ingestedAt int64
		err := rows.Scan(&ci.AcademicYear, &ci.Semester, &ci.PlanCode, &ci.PlanTitle, &ci.ReportDate,
			&ci.Source, &ingestedAt)
		if err != nil {
			return nil, persistErr("scan course info", err)
		}
		ci.IngestedAt = time.Unix(ingestedAt, 0)
		out = append(out, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate course info", err)
	}
	return out, nil
}

func (c *Client) UpsertStudentProfiles(profiles []models.StudentProfile) (int, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, persistErr("begin profile batch", err)
	}
	defer tx.Rollback()

	for _, p := range profiles {
		_, err := tx.Exec(`
			INSERT INTO student_profiles (subject_code, academic_year, semester, total_enrolled, first_time, partial_dedication)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(subject_code, academic_year, semester) DO UPDATE SET
				total_enrolled = excluded.total_enrolled,
				first_time = excluded.first_time,
				partial_dedication = excluded.partial_dedication
		`, p.SubjectCode, p.AcademicYear, p.Semester, p.TotalEnrolled, p.FirstTime, p.PartialDedication)
		if err != nil {
			return 0, persistErr("upsert student profile", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, persistErr("commit profile batch", err)
	}

	logger.Info("Student profiles stored", zap.Int("count", len(profiles)))
	return len(profiles), nil
}

func (c *Client) GetStudentProfiles(subjectCode string) ([]models.StudentProfile, error) {
	rows, err := c.db.Query(`
		SELECT subject_code, academic_year, semester, total_enrolled, first_time, partial_dedication
		FROM student_profiles
		WHERE ? = '' OR subject_code = ?
		ORDER BY subject_code, academic_year, semester
	`, subjectCode, subjectCode)
	if err != nil {
		return nil, persistErr("get student profiles", err)
	}
	defer rows.Close()

	out := []models.StudentProfile{}
	for rows.Next() {
		var p models.StudentProfile
		err := rows.Scan(&p.SubjectCode, &p.AcademicYear, &p.Semester, &p.TotalEnrolled, &p.FirstTime, &p.PartialDedication)
		if err != nil {
			return nil, persistErr("scan student profile", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate student profiles", err)
	}
	return out, nil
}

// UpsertHistoricalRates stores rates quoted for earlier years. When two
// reports quote the same year, the one from the later report wins.
func (c *Client) UpsertHistoricalRates(rates []models.HistoricalRate) (int, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, persistErr("begin historical rate batch", err)
	}
	defer tx.Rollback()

	for _, r := range rates {
		_, err := tx.Exec(`
			INSERT INTO historical_rates (subject_code, academic_year, semester, metric, value, report_year)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(subject_code, academic_year, semester, metric) DO UPDATE SET
				value = excluded.value,
				report_year = excluded.report_year
			WHERE COALESCE(excluded.report_year, '') >= COALESCE(historical_rates.report_year, '')
		`, r.SubjectCode, r.AcademicYear, r.Semester, r.Metric, r.Value, r.ReportYear)
		if err != nil {
			return 0, persistErr("upsert historical rate", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, persistErr("commit historical rate batch", err)
	}

	logger.Info("Historical rates stored", zap.Int("count", len(rates)))
	return len(rates), nil
}

func (c *Client) GetHistoricalRates(filter models.HistoryFilter) ([]models.HistoricalRate, error) {
	rows, err := c.db.Query(`
		SELECT subject_code, academic_year, semester, metric, value, report_year
		FROM historical_rates
		WHERE (? = '' OR subject_code = ?) AND (? = '' OR semester = ?) AND (? = '' OR metric = ?)
		ORDER BY subject_code, academic_year, semester, metric
	`, filter.SubjectCode, filter.SubjectCode, filter.Semester, filter.Semester, filter.Metric, filter.Metric)
	if err != nil {
		return nil, persistErr("get historical rates", err)
	}
	defer rows.Close()

	out := []models.HistoricalRate{}
	for rows.Next() {
		var r models.HistoricalRate
		var reportYear sql.NullString
		if err := rows.Scan(&r.SubjectCode, &r.AcademicYear, &r.Semester, &r.Metric, &r.Value, &reportYear); err != nil {
			return nil, persistErr("scan historical rate", err)
		}
		r.ReportYear = reportYear.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate historical rates", err)
	}
	return out, nil
}
