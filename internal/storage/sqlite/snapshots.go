package sqlite

import (
	"time"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

func (c *Client) UpsertFacultySnapshot(s *models.FacultySnapshot) error {
	_, err := c.db.Exec(`
		INSERT INTO faculty_snapshots (subject_code, academic_year, semester, faculty, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject_code, academic_year, semester) DO UPDATE SET
			faculty = excluded.faculty,
			fetched_at = excluded.fetched_at
	`, s.SubjectCode, s.AcademicYear, s.Semester, marshalList(s.Faculty), unixOrNow(s.FetchedAt))
	if err != nil {
		return persistErr("upsert faculty snapshot", err)
	}
	return nil
}

func (c *Client) UpsertEvaluationSnapshot(s *models.EvaluationSnapshot) error {
	_, err := c.db.Exec(`
		INSERT INTO evaluation_snapshots (subject_code, academic_year, semester, methods, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject_code, academic_year, semester) DO UPDATE SET
			methods = excluded.methods,
			fetched_at = excluded.fetched_at
	`, s.SubjectCode, s.AcademicYear, s.Semester, marshalList(s.Methods), unixOrNow(s.FetchedAt))
	if err != nil {
		return persistErr("upsert evaluation snapshot", err)
	}
	return nil
}

// GetFacultySnapshots returns the snapshots of one subject, or of every
// subject when subjectCode is empty.
func (c *Client) GetFacultySnapshots(subjectCode string) ([]models.FacultySnapshot, error) {
	rows, err := c.db.Query(`
		SELECT subject_code, academic_year, semester, faculty, fetched_at
		FROM faculty_snapshots
		WHERE ? = '' OR subject_code = ?
		ORDER BY subject_code, academic_year, semester
	`, subjectCode, subjectCode)
	if err != nil {
		return nil, persistErr("get faculty snapshots", err)
	}
	defer rows.Close()

	out := []models.FacultySnapshot{}
	for rows.Next() {
		var s models.FacultySnapshot
		var raw string
		var fetchedAt int64
		if err := rows.Scan(&s.SubjectCode, &s.AcademicYear, &s.Semester, &raw, &fetchedAt); err != nil {
			return nil, persistErr("scan faculty snapshot", err)
		}
		s.Faculty = unmarshalList(raw)
		s.FetchedAt = time.Unix(fetchedAt, 0)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate faculty snapshots", err)
	}
	return out, nil
}

func (c *Client) GetEvaluationSnapshots(subjectCode string) ([]models.EvaluationSnapshot, error) {
	rows, err := c.db.Query(`
		SELECT subject_code, academic_year, semester, methods, fetched_at
		FROM evaluation_snapshots
		WHERE ? = '' OR subject_code = ?
		ORDER BY subject_code, academic_year, semester
	`, subjectCode, subjectCode)
	if err != nil {
		return nil, persistErr("get evaluation snapshots", err)
	}
	defer rows.Close()

	out := []models.EvaluationSnapshot{}
	for rows.Next() {
		var s models.EvaluationSnapshot
		var raw string
		var fetchedAt int64
		if err := rows.Scan(&s.SubjectCode, &s.AcademicYear, &s.Semester, &raw, &fetchedAt); err != nil {
			return nil, persistErr("scan evaluation snapshot", err)
		}
		s.Methods = unmarshalList(raw)
		s.FetchedAt = time.Unix(fetchedAt, 0)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate evaluation snapshots", err)
	}
	return out, nil
}
