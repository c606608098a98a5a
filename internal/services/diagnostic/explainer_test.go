package diagnostic

import (
	"strings"
	"testing"

	"MMDiag/internal/domain/models"
)

func testExplainer(t *testing.T) *Explainer {
	t.Helper()
	e, err := NewExplainer(DefaultParams())
	if err != nil {
		t.Fatalf("NewExplainer: %v", err)
	}
	return e
}

func TestExplainNamesTopDrivers(t *testing.T) {
	e := testExplainer(t)
	s := testScorer(t)
	c := testClassifier(t)

	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureDarkPoolShare:  2.4,
			models.FeatureGammaExposure:  -0.2,
			models.FeatureDeltaExposure:  0.1,
			models.FeatureVenueShift:     1.8,
			models.FeatureBlockIntensity: 0.3,
			models.FeatureIVSkew:         -0.1,
		},
	})
	set.BaselineState = models.BaselineComplete

	score := s.Score(set, []float64{0.1, 0.2, 0.3, 0.4})
	regime := c.Classify(set)
	rec := e.Explain(set, regime, score)

	if len(rec.Drivers) == 0 || len(rec.Drivers) > maxDrivers {
		t.Fatalf("drivers = %d, want 1..%d", len(rec.Drivers), maxDrivers)
	}
	if rec.Drivers[0].Feature != models.FeatureDarkPoolShare {
		t.Fatalf("top driver = %s, want dark pool share", rec.Drivers[0].Feature)
	}
	if rec.Drivers[0].Direction != "elevated" {
		t.Fatalf("direction = %s, want elevated", rec.Drivers[0].Direction)
	}
	var pct float64
	for _, d := range rec.Drivers {
		pct += d.ContributionPct
	}
	if pct > 100.0001 {
		t.Fatalf("driver contributions sum to %v%%", pct)
	}
	if !strings.Contains(rec.Text, "dark_pool_share") {
		t.Fatalf("text does not name the top driver:\n%s", rec.Text)
	}
	if !strings.Contains(rec.Summary, string(models.BaselineComplete)) {
		t.Fatalf("summary omits baseline state: %s", rec.Summary)
	}
}

func TestExplainListsExclusions(t *testing.T) {
	e := testExplainer(t)
	s := testScorer(t)
	c := testClassifier(t)

	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure: 0.2,
			models.FeatureDeltaExposure: 0.1,
		},
		excluded: []string{models.FeatureIVSkew, models.FeatureVenueShift},
	})
	set.Excluded[0].Detail = "insufficient history (n=12 < 21)"
	set.Excluded[1].Detail = "insufficient history (n=15 < 21)"
	set.BaselineState = models.BaselinePartial

	rec := e.Explain(set, c.Classify(set), s.Score(set, nil))

	if len(rec.Exclusions) != 2 {
		t.Fatalf("exclusions = %d, want 2", len(rec.Exclusions))
	}
	if !strings.Contains(rec.Text, "Excluded features (2)") {
		t.Fatalf("text omits exclusion count:\n%s", rec.Text)
	}
	if !strings.Contains(rec.Text, "n=12 < 21") {
		t.Fatalf("text omits exclusion detail:\n%s", rec.Text)
	}
}

func TestExplainUndefinedScore(t *testing.T) {
	e := testExplainer(t)
	c := testClassifier(t)
	s := testScorer(t)

	set := makeSet(setInput{
		excluded: []string{
			models.FeatureDarkPoolShare,
			models.FeatureGammaExposure,
			models.FeatureDeltaExposure,
			models.FeatureVenueShift,
			models.FeatureBlockIntensity,
			models.FeatureIVSkew,
		},
	})
	set.BaselineState = models.BaselineEmpty

	rec := e.Explain(set, c.Classify(set), s.Score(set, nil))

	if !strings.Contains(rec.Summary, "undefined") {
		t.Fatalf("summary does not flag undefined score: %s", rec.Summary)
	}
	if !strings.Contains(rec.Text, string(models.RegimeUndetermined)) {
		t.Fatalf("text omits the regime: %s", rec.Text)
	}
	if len(rec.Drivers) != 0 {
		t.Fatalf("drivers on an undefined day: %+v", rec.Drivers)
	}
}

func TestExplainDeterministicText(t *testing.T) {
	e := testExplainer(t)
	s := testScorer(t)
	c := testClassifier(t)

	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure: -1.8,
			models.FeatureDeltaExposure: 0.2,
			models.FeatureIVSkew:        1.1,
		},
		percentiles: map[string]float64{
			models.FeatureImpactPerVolume: 75,
		},
	})
	set.BaselineState = models.BaselineComplete

	score := s.Score(set, []float64{0.2, 0.4})
	regime := c.Classify(set)
	first := e.Explain(set, regime, score)
	for i := 0; i < 3; i++ {
		if got := e.Explain(set, regime, score); got.Text != first.Text || got.Summary != first.Summary {
			t.Fatalf("explanation text differs across identical runs")
		}
	}
}
