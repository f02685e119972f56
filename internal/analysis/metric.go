package analysis

import (
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

type Rates struct {
	Performance float64 `json:"performance_rate"`
	Success     float64 `json:"success_rate"`
	Absenteeism float64 `json:"absenteeism_rate"`
}

// CalculateRates derives percentage rates from raw enrollment counts.
// A zero denominator yields a zero rate.
func CalculateRates(enrolled, passed, participated int) (Rates, error) {
	if err := validateCounts(enrolled, passed, participated); err != nil {
		return Rates{}, err
	}

	var r Rates
	if enrolled > 0 {
		r.Performance = percent(passed, enrolled)
		r.Absenteeism = percent(enrolled-participated, enrolled)
	}
	if participated > 0 {
		r.Success = percent(passed, participated)
	}
	return r, nil
}

// ApplyRates fills the derived rate fields of rec.
func ApplyRates(rec *models.SubjectYearRecord) error {
	r, err := CalculateRates(rec.Enrolled, rec.Passed, rec.Participated)
	if err != nil {
		return err
	}
	rec.PerformanceRate = r.Performance
	rec.SuccessRate = r.Success
	rec.AbsenteeismRate = r.Absenteeism
	return nil
}

func validateCounts(enrolled, passed, participated int) error {
	reason := ""
	switch {
	case enrolled < 0 || passed < 0 || participated < 0:
		reason = "counts must be non-negative"
	case participated > enrolled:
		reason = "participated exceeds enrolled"
	case passed > participated:
		reason = "passed exceeds participated"
	}
	if reason == "" {
		return nil
	}
	return &InvalidMetricInputError{
		Enrolled:     enrolled,
		Passed:       passed,
		Participated: participated,
		Reason:       reason,
	}
}

func percent(num, den int) float64 {
	return float64(num) / float64(den) * 100
}
