package diagnostic

import (
	"errors"
	"testing"

	"MMDiag/internal/domain/models"
)

// historyRecords builds n days of records with mild variation so every listed
// feature gets a non-degenerate baseline distribution.
func historyRecords(instrument string, n int, features ...string) []models.FeatureRecord {
	recs := make([]models.FeatureRecord, n)
	for i := 0; i < n; i++ {
		values := make(map[string]float64, len(features))
		for j, f := range features {
			v := 0.30 + 0.01*float64(i%7) + 0.05*float64(j)
			if f == models.FeatureDarkPoolShare {
				v = 0.30 + 0.01*float64(i%7)
			}
			values[f] = v
		}
		recs[i] = dayRecord(instrument, i, values)
	}
	return recs
}

func buildBaseline(t *testing.T, p Params, instrument string, n int, features ...string) *models.Baseline {
	t.Helper()
	c := testCalculator(t, p)
	b, err := c.Compute(instrument, historyRecords(instrument, n, features...))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return b
}

func testNormalizer(t *testing.T, p Params) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(p)
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	return n
}

func TestNormalizeMissingBaseline(t *testing.T) {
	n := testNormalizer(t, DefaultParams())
	rec := dayRecord("AAPL", 30, map[string]float64{models.FeatureDarkPoolShare: 0.4})
	if _, err := n.Normalize(&rec, nil); !errors.Is(err, models.ErrMissingBaseline) {
		t.Fatalf("err = %v, want ErrMissingBaseline", err)
	}
}

func TestNormalizeRejectsForeignBaseline(t *testing.T) {
	p := DefaultParams()
	n := testNormalizer(t, p)
	b := buildBaseline(t, p, "MSFT", 25, models.FeatureDarkPoolShare)
	rec := dayRecord("AAPL", 30, map[string]float64{models.FeatureDarkPoolShare: 0.4})
	if _, err := n.Normalize(&rec, b); err == nil {
		t.Fatalf("expected error for cross-instrument baseline")
	}
}

func TestNormalizeDomainViolation(t *testing.T) {
	p := DefaultParams()
	n := testNormalizer(t, p)
	b := buildBaseline(t, p, "AAPL", 25, models.FeatureDarkPoolShare)
	rec := dayRecord("AAPL", 30, map[string]float64{models.FeatureDarkPoolShare: 1.2})
	_, err := n.Normalize(&rec, b)
	var domainErr *models.InvalidDomainValueError
	if !errors.As(err, &domainErr) {
		t.Fatalf("err = %v, want InvalidDomainValueError", err)
	}
	if domainErr.Feature != models.FeatureDarkPoolShare || domainErr.Value != 1.2 {
		t.Fatalf("unexpected domain error: %+v", domainErr)
	}
}

func TestNormalizeHistoryBoundary(t *testing.T) {
	p := DefaultParams()
	n := testNormalizer(t, p)

	// 20 observations: one short of usable
	b20 := buildBaseline(t, p, "AAPL", 20, models.FeatureDarkPoolShare)
	rec := dayRecord("AAPL", 40, map[string]float64{models.FeatureDarkPoolShare: 0.4})
	set, err := n.Normalize(&rec, b20)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if _, ok := set.Deviation(models.FeatureDarkPoolShare); ok {
		t.Fatalf("feature normalized at n=20, want exclusion")
	}
	found := false
	for _, ex := range set.Excluded {
		if ex.Feature == models.FeatureDarkPoolShare {
			found = true
			if ex.Reason != models.ExclusionInsufficientHistory {
				t.Fatalf("reason = %s, want %s", ex.Reason, models.ExclusionInsufficientHistory)
			}
			if ex.Observations != 20 {
				t.Fatalf("observations = %d, want 20", ex.Observations)
			}
		}
	}
	if !found {
		t.Fatalf("no exclusion recorded for dark pool share")
	}

	// 21 observations: exactly enough
	b21 := buildBaseline(t, p, "AAPL", 21, models.FeatureDarkPoolShare)
	set, err = n.Normalize(&rec, b21)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if _, ok := set.Deviation(models.FeatureDarkPoolShare); !ok {
		t.Fatalf("feature excluded at n=21, want normalized")
	}
}

func TestNormalizeDegenerateStd(t *testing.T) {
	p := DefaultParams()
	n := testNormalizer(t, p)

	c := testCalculator(t, p)
	recs := make([]models.FeatureRecord, 25)
	for i := range recs {
		recs[i] = dayRecord("AAPL", i, map[string]float64{models.FeatureIVSkew: 0.05})
	}
	b, err := c.Compute("AAPL", recs)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	rec := dayRecord("AAPL", 40, map[string]float64{models.FeatureIVSkew: 0.07})
	set, err := n.Normalize(&rec, b)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if _, ok := set.Deviation(models.FeatureIVSkew); ok {
		t.Fatalf("constant-history feature normalized, want degenerate-std exclusion")
	}
	for _, ex := range set.Excluded {
		if ex.Feature == models.FeatureIVSkew && ex.Reason != models.ExclusionDegenerateStd {
			t.Fatalf("reason = %s, want %s", ex.Reason, models.ExclusionDegenerateStd)
		}
	}
}

func TestNormalizeDeviationAndRaws(t *testing.T) {
	p := DefaultParams()
	n := testNormalizer(t, p)
	b := buildBaseline(t, p, "AAPL", 30, models.FeatureDarkPoolShare, models.FeatureGammaExposure)

	rec := dayRecord("AAPL", 40, map[string]float64{
		models.FeatureDarkPoolShare:  0.45,
		models.FeatureGammaExposure:  0.55,
		models.FeaturePriceChangePct: -0.2,
	})
	set, err := n.Normalize(&rec, b)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	stats := b.Stats[models.FeatureDarkPoolShare]
	dev, ok := set.Deviation(models.FeatureDarkPoolShare)
	if !ok {
		t.Fatalf("dark pool share not normalized")
	}
	if want := (0.45 - stats.Mean) / stats.Std; !almostEqual(dev, want) {
		t.Fatalf("deviation = %v, want %v", dev, want)
	}

	// raw values survive even for features without a baseline entry
	if v, ok := set.Raw(models.FeaturePriceChangePct); !ok || v != -0.2 {
		t.Fatalf("price change raw = %v, %v; want -0.2, true", v, ok)
	}
	if set.BaselineState == "" {
		t.Fatalf("baseline state not propagated")
	}
}
