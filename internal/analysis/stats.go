package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

type WelchResult struct {
	TStatistic float64
	DF         float64
	PValue     float64
}

// WelchTTest compares two independent samples without assuming equal
// variances. ok is false when either sample has fewer than two values or the
// standard error is zero, in which case no p-value exists.
func WelchTTest(a, b []float64) (WelchResult, bool) {
	if len(a) < 2 || len(b) < 2 {
		return WelchResult{}, false
	}

	n1, n2 := float64(len(a)), float64(len(b))
	v1 := stat.Variance(a, nil) / n1
	v2 := stat.Variance(b, nil) / n2
	se := math.Sqrt(v1 + v2)
	if se == 0 || math.IsNaN(se) {
		return WelchResult{}, false
	}

	t := (stat.Mean(a, nil) - stat.Mean(b, nil)) / se
	df := (v1 + v2) * (v1 + v2) / (v1*v1/(n1-1) + v2*v2/(n2-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * (1 - dist.CDF(math.Abs(t)))

	return WelchResult{TStatistic: t, DF: df, PValue: clampProbability(p)}, true
}

// CohensD uses the pooled standard deviation of both samples.
func CohensD(a, b []float64) (float64, bool) {
	if len(a) < 2 || len(b) < 2 {
		return 0, false
	}
	n1, n2 := float64(len(a)), float64(len(b))
	pooled := math.Sqrt(((n1-1)*stat.Variance(a, nil) + (n2-1)*stat.Variance(b, nil)) / (n1 + n2 - 2))
	if pooled == 0 {
		return 0, true
	}
	return (stat.Mean(a, nil) - stat.Mean(b, nil)) / pooled, true
}

func EffectSizeCategory(d float64) string {
	abs := math.Abs(d)
	switch {
	case abs >= 0.8:
		return "large"
	case abs >= 0.5:
		return "medium"
	case abs >= 0.2:
		return "small"
	default:
		return "negligible"
	}
}

type LinearFit struct {
	Slope     float64
	Intercept float64
	RSquared  float64
	// PValue tests slope != 0; nil below three points or for a degenerate fit.
	PValue *float64
}

// FitLinear runs ordinary least squares of ys on xs.
func FitLinear(xs, ys []float64) LinearFit {
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	fit := LinearFit{Slope: beta, Intercept: alpha}
	if stat.Variance(ys, nil) > 0 {
		fit.RSquared = stat.RSquared(xs, ys, nil, alpha, beta)
	}

	n := len(xs)
	if n < 3 {
		return fit
	}

	meanX := stat.Mean(xs, nil)
	var ssRes, sxx float64
	for i := range xs {
		r := ys[i] - (alpha + beta*xs[i])
		ssRes += r * r
		sxx += (xs[i] - meanX) * (xs[i] - meanX)
	}
	if sxx == 0 {
		return fit
	}

	se := math.Sqrt(ssRes / float64(n-2) / sxx)
	var p float64
	switch {
	case se == 0 && beta == 0:
		return fit
	case se == 0:
		p = 0
	default:
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
		p = clampProbability(2 * (1 - dist.CDF(math.Abs(beta/se))))
	}
	fit.PValue = &p
	return fit
}

type MannKendallResult struct {
	S      int
	Z      float64
	PValue float64
	// Trend is "increasing", "decreasing" or "no trend" at the given alpha.
	Trend string
}

// MannKendall tests ys for a monotonic trend. Only the order of observations
// matters, so gaps between years do not affect it. Tied values are corrected
// for in the variance.
func MannKendall(ys []float64, alpha float64) (MannKendallResult, bool) {
	n := len(ys)
	if n < 3 {
		return MannKendallResult{}, false
	}

	s := 0
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			switch {
			case ys[j] > ys[i]:
				s++
			case ys[j] < ys[i]:
				s--
			}
		}
	}

	ties := make(map[float64]int)
	for _, y := range ys {
		ties[y]++
	}
	fn := float64(n)
	variance := fn * (fn - 1) * (2*fn + 5)
	for _, t := range ties {
		if t > 1 {
			ft := float64(t)
			variance -= ft * (ft - 1) * (2*ft + 5)
		}
	}
	variance /= 18

	var z float64
	if variance > 0 {
		switch {
		case s > 0:
			z = float64(s-1) / math.Sqrt(variance)
		case s < 0:
			z = float64(s+1) / math.Sqrt(variance)
		}
	}

	p := clampProbability(2 * (1 - distuv.UnitNormal.CDF(math.Abs(z))))
	trend := "no trend"
	if p < alpha {
		if z > 0 {
			trend = "increasing"
		} else if z < 0 {
			trend = "decreasing"
		}
	}

	return MannKendallResult{S: s, Z: z, PValue: p, Trend: trend}, true
}

// TheilSen returns the median of all pairwise slopes.
func TheilSen(xs, ys []float64) (slope, intercept float64, ok bool) {
	var slopes []float64
	for i := 0; i < len(xs)-1; i++ {
		for j := i + 1; j < len(xs); j++ {
			dx := xs[j] - xs[i]
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (ys[j]-ys[i])/dx)
		}
	}
	if len(slopes) == 0 {
		return 0, 0, false
	}
	slope = median(slopes)
	intercept = median(ys) - slope*median(xs)
	return slope, intercept, true
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(values []float64) float64 {
	return stat.Mean(values, nil)
}

func clampProbability(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 1
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
