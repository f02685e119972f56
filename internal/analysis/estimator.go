package analysis

import (
	"fmt"
	"strings"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

// Estimate is what a TrendEstimator derives from one series.
type Estimate struct {
	Linear LinearFit

	// Monotonic fields are set only when the estimator ran the rank test.
	MannKendall   *MannKendallResult
	TheilSenSlope *float64
}

// TrendEstimator fits a trend to an ordered series. xs are year indexes.
type TrendEstimator interface {
	Mode() models.TrendMode
	Estimate(xs, ys []float64, alpha float64) Estimate
}

type LinearEstimator struct{}

func (LinearEstimator) Mode() models.TrendMode { return models.TrendModeBasic }

func (LinearEstimator) Estimate(xs, ys []float64, _ float64) Estimate {
	return Estimate{Linear: FitLinear(xs, ys)}
}

// MonotonicEstimator adds the Mann-Kendall test and Theil-Sen slope to the
// linear fit once at least three points are available.
type MonotonicEstimator struct{}

func (MonotonicEstimator) Mode() models.TrendMode { return models.TrendModeAdvanced }

func (MonotonicEstimator) Estimate(xs, ys []float64, alpha float64) Estimate {
	est := Estimate{Linear: FitLinear(xs, ys)}
	if len(ys) < 3 {
		return est
	}
	if mk, ok := MannKendall(ys, alpha); ok {
		est.MannKendall = &mk
	}
	if slope, _, ok := TheilSen(xs, ys); ok {
		est.TheilSenSlope = &slope
	}
	return est
}

const (
	EstimatorBasic    = "basic"
	EstimatorAdvanced = "advanced"
	EstimatorAuto     = "auto"
)

// SelectEstimator resolves the configured trend mode. The rank statistics
// are always compiled in, so auto resolves to the monotonic estimator.
func SelectEstimator(mode string) (TrendEstimator, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case EstimatorBasic:
		return LinearEstimator{}, nil
	case EstimatorAdvanced, EstimatorAuto, "":
		return MonotonicEstimator{}, nil
	default:
		return nil, fmt.Errorf("unknown trend mode %q", mode)
	}
}
