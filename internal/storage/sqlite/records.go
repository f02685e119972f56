package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

const upsertRecordQuery = `
	INSERT INTO subject_records (subject_code, academic_year, semester, plan_code, subject_name, credits,
		enrolled, participated, passed, performance_rate, success_rate, absenteeism_rate, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(subject_code, academic_year, semester) DO UPDATE SET
		plan_code = excluded.plan_code,
		subject_name = COALESCE(NULLIF(excluded.subject_name, ''), subject_records.subject_name),
		credits = excluded.credits,
		enrolled = excluded.enrolled,
		participated = excluded.participated,
		passed = excluded.passed,
		performance_rate = excluded.performance_rate,
		success_rate = excluded.success_rate,
		absenteeism_rate = excluded.absenteeism_rate
`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertRecord(x execer, rec *models.SubjectYearRecord) error {
	_, err := x.Exec(
		upsertRecordQuery,
		rec.SubjectCode,
		rec.AcademicYear,
		rec.Semester,
		rec.PlanCode,
		rec.SubjectName,
		rec.Credits,
		rec.Enrolled,
		rec.Participated,
		rec.Passed,
		rec.PerformanceRate,
		rec.SuccessRate,
		rec.AbsenteeismRate,
		unixOrNow(rec.CreatedAt),
	)
	return err
}

// UpsertRecord stores one record keyed by (subject_code, academic_year, semester).
// Rates must already be populated.
func (c *Client) UpsertRecord(rec *models.SubjectYearRecord) error {
	if err := upsertRecord(c.db, rec); err != nil {
		return persistErr("upsert subject record", err)
	}
	logger.Debug("Subject record stored",
		zap.String("subject_code", rec.SubjectCode),
		zap.String("academic_year", rec.AcademicYear),
		zap.String("semester", rec.Semester),
	)
	return nil
}

// UpsertRecords stores a batch in one transaction.
func (c *Client) UpsertRecords(records []models.SubjectYearRecord) (int, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, persistErr("begin record batch", err)
	}
	defer tx.Rollback()

	for i := range records {
		if err := upsertRecord(tx, &records[i]); err != nil {
			return 0, persistErr("upsert subject record", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, persistErr("commit record batch", err)
	}

	logger.Info("Subject records stored", zap.Int("count", len(records)))
	return len(records), nil
}

func (c *Client) GetRecords(filter models.RecordFilter) ([]models.SubjectYearRecord, error) {
	query := `
		SELECT subject_code, academic_year, semester, plan_code, subject_name, credits,
			enrolled, participated, passed, performance_rate, success_rate, absenteeism_rate, created_at
		FROM subject_records
	`
	var where []string
	var args []any
	if filter.SubjectCode != "" {
		where = append(where, "subject_code = ?")
		args = append(args, filter.SubjectCode)
	}
	if filter.AcademicYear != "" {
		where = append(where, "academic_year = ?")
		args = append(args, filter.AcademicYear)
	}
	if filter.Semester != "" {
		where = append(where, "semester = ?")
		args = append(args, filter.Semester)
	}
	if filter.PlanCode != "" {
		where = append(where, "plan_code = ?")
		args = append(args, filter.PlanCode)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY subject_code, academic_year, semester"

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, persistErr("get subject records", err)
	}
	defer rows.Close()

	records := []models.SubjectYearRecord{}
	for rows.Next() {
		var r models.SubjectYearRecord
		var plan, name sql.NullString
		var credits sql.NullInt64
		var createdAt int64

		err := rows.Scan(&r.SubjectCode, &r.AcademicYear, &r.Semester, &plan, &name, &credits,
			&r.Enrolled, &r.Participated, &r.Passed, &r.PerformanceRate, &r.SuccessRate, &r.AbsenteeismRate, &createdAt)
		if err != nil {
			return nil, persistErr("scan subject record", err)
		}
		r.PlanCode = plan.String
		r.SubjectName = name.String
		r.Credits = int(credits.Int64)
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate subject records", err)
	}

	return records, nil
}

// ListSubjects returns one summary per subject, optionally restricted to a
// year and semester.
func (c *Client) ListSubjects(academicYear, semester string) ([]models.SubjectSummary, error) {
	query := `
		SELECT subject_code, MAX(COALESCE(subject_name, '')), COUNT(DISTINCT academic_year)
		FROM subject_records
		WHERE (? = '' OR academic_year = ?) AND (? = '' OR semester = ?)
		GROUP BY subject_code
		ORDER BY subject_code
	`
	return c.querySummaries("list subjects", query, academicYear, academicYear, semester, semester)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// SearchSubjects matches the code or name by substring, case-insensitively.
func (c *Client) SearchSubjects(term string, limit int) ([]models.SubjectSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
	query := `
		SELECT subject_code, MAX(COALESCE(subject_name, '')), COUNT(DISTINCT academic_year)
		FROM subject_records
		WHERE LOWER(subject_code) LIKE ? ESCAPE '\' OR LOWER(COALESCE(subject_name, '')) LIKE ? ESCAPE '\'
		GROUP BY subject_code
		ORDER BY subject_code
		LIMIT ?
	`
	return c.querySummaries("search subjects", query, pattern, pattern, limit)
}

func (c *Client) querySummaries(op, query string, args ...any) ([]models.SubjectSummary, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	out := []models.SubjectSummary{}
	for rows.Next() {
		var s models.SubjectSummary
		if err := rows.Scan(&s.SubjectCode, &s.SubjectName, &s.Years); err != nil {
			return nil, persistErr(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return out, nil
}

func (c *Client) ListAcademicYears() ([]string, error) {
	rows, err := c.db.Query(`SELECT DISTINCT academic_year FROM subject_records ORDER BY academic_year`)
	if err != nil {
		return nil, persistErr("list academic years", err)
	}
	defer rows.Close()

	years := []string{}
	for rows.Next() {
		var y string
		if err := rows.Scan(&y); err != nil {
			return nil, persistErr("scan academic year", err)
		}
		years = append(years, y)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate academic years", err)
	}
	return years, nil
}

// SubjectYears lists the distinct (subject, year, semester, plan) keys held,
// which is what the API syncer fetches snapshots for.
func (c *Client) SubjectYears(semester string) ([]models.SubjectYearRecord, error) {
	rows, err := c.db.Query(`
		SELECT subject_code, academic_year, semester, COALESCE(plan_code, '')
		FROM subject_records
		WHERE ? = '' OR semester = ?
		ORDER BY subject_code, academic_year, semester
	`, semester, semester)
	if err != nil {
		return nil, persistErr("list subject years", err)
	}
	defer rows.Close()

	out := []models.SubjectYearRecord{}
	for rows.Next() {
		var r models.SubjectYearRecord
		if err := rows.Scan(&r.SubjectCode, &r.AcademicYear, &r.Semester, &r.PlanCode); err != nil {
			return nil, persistErr("scan subject year", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate subject years", err)
	}
	return out, nil
}
