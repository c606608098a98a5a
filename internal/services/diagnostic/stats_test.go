package diagnostic

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeStatsSampleStd(t *testing.T) {
	s, ok := computeStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if !ok {
		t.Fatalf("expected stats for non-empty input")
	}
	if !almostEqual(s.Mean, 5.0) {
		t.Fatalf("mean = %v, want 5.0", s.Mean)
	}
	// sample variance with n-1 denominator: 32/7
	want := math.Sqrt(32.0 / 7.0)
	if !almostEqual(s.Std, want) {
		t.Fatalf("std = %v, want %v", s.Std, want)
	}
	if s.N != 8 {
		t.Fatalf("n = %d, want 8", s.N)
	}
}

func TestComputeStatsSingleObservation(t *testing.T) {
	s, ok := computeStats([]float64{3.5})
	if !ok {
		t.Fatalf("expected stats for single observation")
	}
	if s.Std != 0 {
		t.Fatalf("std = %v, want 0 for n=1", s.Std)
	}
	if s.Median != 3.5 || s.Min != 3.5 || s.Max != 3.5 {
		t.Fatalf("degenerate quantiles wrong: %+v", s)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	if _, ok := computeStats(nil); ok {
		t.Fatalf("expected no stats for empty input")
	}
}

func TestQuantileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	if got := quantile(sorted, 0.5); !almostEqual(got, 2.5) {
		t.Fatalf("median = %v, want 2.5", got)
	}
	if got := quantile(sorted, 0.25); !almostEqual(got, 1.75) {
		t.Fatalf("p25 = %v, want 1.75", got)
	}
	if got := quantile(sorted, 1.0); !almostEqual(got, 4) {
		t.Fatalf("p100 = %v, want 4", got)
	}
}

func TestPercentileRankMidrankTies(t *testing.T) {
	history := []float64{1, 2, 2, 3}
	// below=1, equal=2 -> (1 + 0.5*2)/4 = 50
	if got := percentileRank(2, history); !almostEqual(got, 50) {
		t.Fatalf("rank = %v, want 50", got)
	}
	if got := percentileRank(10, history); !almostEqual(got, 100) {
		t.Fatalf("rank = %v, want 100", got)
	}
	if got := percentileRank(0, history); !almostEqual(got, 0) {
		t.Fatalf("rank = %v, want 0", got)
	}
}

func TestPercentileRankEmptyHistory(t *testing.T) {
	if got := percentileRank(123.4, nil); !almostEqual(got, 50) {
		t.Fatalf("rank = %v, want 50 for empty history", got)
	}
}

func TestRobustDeviation(t *testing.T) {
	if got := robustDeviation(5, 3, 1); !almostEqual(got, 2.0/1.4826) {
		t.Fatalf("robust deviation = %v", got)
	}
	if got := robustDeviation(5, 3, 0); got != 0 {
		t.Fatalf("robust deviation with zero MAD = %v, want 0", got)
	}
}
