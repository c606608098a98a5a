package diagnostic

import (
	"math"
	"sort"

	"MMDiag/internal/domain/models"
)

// computeStats builds DistributionStats over a window of values. Std uses the
// sample denominator (n-1) and is reported as 0 when n < 2, matching the
// expanding-window cold-start rule where std is undefined before two
// observations.
func computeStats(values []float64) (models.DistributionStats, bool) {
	n := len(values)
	if n == 0 {
		return models.DistributionStats{}, false
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	std := 0.0
	if n >= 2 {
		var ss float64
		for _, v := range values {
			d := v - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(n-1))
	}

	med := quantile(sorted, 0.5)

	dev := make([]float64, n)
	for i, v := range sorted {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	mad := quantile(dev, 0.5)

	return models.DistributionStats{
		Mean:   mean,
		Std:    std,
		Median: med,
		MAD:    mad,
		P25:    quantile(sorted, 0.25),
		P75:    quantile(sorted, 0.75),
		P90:    quantile(sorted, 0.90),
		P95:    quantile(sorted, 0.95),
		Min:    sorted[0],
		Max:    sorted[n-1],
		N:      n,
	}, true
}

// quantile computes the q-quantile of an ascending slice using linear
// interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// percentileRank ranks value against history using the midrank convention:
// (countBelow + 0.5*countEqual) / n, scaled to 0-100. The tie rule is fixed;
// it keeps scores stable under repeated raw-score values.
func percentileRank(value float64, history []float64) float64 {
	if len(history) == 0 {
		return 50.0
	}
	below, equal := 0, 0
	for _, h := range history {
		switch {
		case h < value:
			below++
		case h == value:
			equal++
		}
	}
	return (float64(below) + 0.5*float64(equal)) / float64(len(history)) * 100.0
}

// degenerateStd reports whether a standard deviation is too close to zero to
// divide by. Sum-of-squares accumulation leaves residues around 1e-18 for a
// constant history, so an exact zero compare would miss it; the tolerance is
// relative to the mean's magnitude.
func degenerateStd(std, mean float64) bool {
	return std <= 1e-9*(1+math.Abs(mean))
}

// robustDeviation is the MAD-based z-score, scaled by 1.4826 so it is
// comparable to a standard z-score under normality. Returns 0 when the MAD
// is degenerate.
func robustDeviation(value, median, mad float64) float64 {
	scaled := 1.4826 * mad
	if math.IsNaN(scaled) || degenerateStd(scaled, median) {
		return 0
	}
	return (value - median) / scaled
}
