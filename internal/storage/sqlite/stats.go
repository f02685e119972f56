package sqlite

import (
	"errors"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

func (c *Client) Stats() (*models.DatabaseStats, error) {
	var s models.DatabaseStats

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(DISTINCT subject_code) FROM subject_records`, &s.TotalSubjects},
		{`SELECT COUNT(*) FROM subject_records`, &s.TotalRecords},
		{`SELECT COUNT(*) FROM historical_rates`, &s.HistoricalRates},
		{`SELECT COUNT(*) FROM faculty_snapshots`, &s.FacultySnapshots},
		{`SELECT COUNT(*) FROM evaluation_snapshots`, &s.EvaluationSnapshots},
		{`SELECT COUNT(*) FROM analysis_runs WHERE status = 'completed'`, &s.CompletedAnalyses},
	}
	for _, q := range counts {
		if err := c.db.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, persistErr("compute stats", err)
		}
	}

	years, err := c.ListAcademicYears()
	if err != nil {
		return nil, err
	}
	s.AcademicYears = years
	s.TotalAcademicYears = len(years)

	latest, err := c.LatestAnalysisID()
	switch {
	case err == nil:
		s.LatestAnalysisID = latest
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	return &s, nil
}
