package diagnostic

import (
	"testing"
	"time"

	"MMDiag/internal/domain/models"
)

// setInput is a compact way to assemble a normalized set for rule tests.
type setInput struct {
	deviations  map[string]float64
	percentiles map[string]float64
	raws        map[string]float64
	excluded    []string
}

func makeSet(in setInput) *models.NormalizedFeatureSet {
	set := &models.NormalizedFeatureSet{
		Instrument: "AAPL",
		Date:       time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Features:   make(map[string]models.NormalizedFeature),
		Raws:       make(map[string]float64),
	}
	for f, d := range in.deviations {
		nf := set.Features[f]
		nf.Feature = f
		nf.Deviation = d
		set.Features[f] = nf
	}
	for f, p := range in.percentiles {
		nf := set.Features[f]
		nf.Feature = f
		nf.Percentile = p
		set.Features[f] = nf
	}
	for f, v := range in.raws {
		set.Raws[f] = v
	}
	for _, f := range in.excluded {
		set.Excluded = append(set.Excluded, models.ExcludedFeature{
			Feature: f,
			Reason:  models.ExclusionInsufficientHistory,
		})
	}
	return set
}

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(DefaultParams())
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func TestClassifyUndeterminedWhenRequiredMissing(t *testing.T) {
	c := testClassifier(t)
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureDarkPoolShare: 2.0,
		},
		raws:     map[string]float64{models.FeatureDarkPoolShare: 0.9},
		excluded: []string{models.FeatureGammaExposure, models.FeatureDeltaExposure},
	})
	res := c.Classify(set)
	if res.Label != models.RegimeUndetermined {
		t.Fatalf("label = %s, want %s", res.Label, models.RegimeUndetermined)
	}
	if len(res.MissingRequired) != 2 {
		t.Fatalf("missing required = %v", res.MissingRequired)
	}
	if len(res.Traces) != 0 {
		t.Fatalf("rules were evaluated despite missing required deviations")
	}
}

func TestClassifyGammaPositiveControl(t *testing.T) {
	c := testClassifier(t)
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure: 2.1,
			models.FeatureDeltaExposure: 0.3,
		},
		percentiles: map[string]float64{
			models.FeaturePriceEfficiency: 30,
		},
	})
	res := c.Classify(set)
	if res.Label != models.RegimeGammaPositive {
		t.Fatalf("label = %s, want %s", res.Label, models.RegimeGammaPositive)
	}
	if res.Priority != 1 {
		t.Fatalf("priority = %d, want 1", res.Priority)
	}
	if len(res.Traces) != 1 || !res.Traces[0].Matched {
		t.Fatalf("traces = %+v, want single matched trace", res.Traces)
	}
}

func TestClassifyGammaPositiveNeedsEfficiency(t *testing.T) {
	c := testClassifier(t)
	// extreme gamma but no efficiency proxy observed: rule 1 fails
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure: 2.1,
			models.FeatureDeltaExposure: 0.3,
		},
	})
	res := c.Classify(set)
	if res.Label == models.RegimeGammaPositive {
		t.Fatalf("rule matched with unobserved efficiency proxy")
	}
	if res.Label != models.RegimeNeutral {
		t.Fatalf("label = %s, want %s", res.Label, models.RegimeNeutral)
	}
}

func TestClassifyGammaNegativeVacuum(t *testing.T) {
	c := testClassifier(t)
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure: -1.8,
			models.FeatureDeltaExposure: 0.2,
		},
		percentiles: map[string]float64{
			models.FeatureImpactPerVolume: 75,
		},
	})
	res := c.Classify(set)
	if res.Label != models.RegimeGammaNegative {
		t.Fatalf("label = %s, want %s", res.Label, models.RegimeGammaNegative)
	}
	if res.Priority != 2 {
		t.Fatalf("priority = %d, want 2", res.Priority)
	}
}

func TestClassifyDarkDominantAccumulation(t *testing.T) {
	c := testClassifier(t)
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure:  0.3,
			models.FeatureDeltaExposure:  0.1,
			models.FeatureBlockIntensity: 1.2,
		},
		raws: map[string]float64{
			models.FeatureDarkPoolShare: 0.75,
		},
	})
	res := c.Classify(set)
	if res.Label != models.RegimeDarkAccumulation {
		t.Fatalf("label = %s, want %s", res.Label, models.RegimeDarkAccumulation)
	}
	if res.Priority != 3 {
		t.Fatalf("priority = %d, want 3", res.Priority)
	}
	if len(res.Traces) != 3 {
		t.Fatalf("traces = %d, want 3 (rules 1 and 2 evaluated and recorded)", len(res.Traces))
	}
}

func TestClassifyHigherPriorityWins(t *testing.T) {
	c := testClassifier(t)
	// both rule 1 (gamma positive) and rule 3 (dark accumulation) hold
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure:  2.0,
			models.FeatureDeltaExposure:  0.1,
			models.FeatureBlockIntensity: 1.5,
		},
		percentiles: map[string]float64{
			models.FeaturePriceEfficiency: 20,
		},
		raws: map[string]float64{
			models.FeatureDarkPoolShare: 0.80,
		},
	})
	res := c.Classify(set)
	if res.Label != models.RegimeGammaPositive {
		t.Fatalf("label = %s, want %s (first satisfying rule governs)", res.Label, models.RegimeGammaPositive)
	}
}

func TestClassifyAbsorption(t *testing.T) {
	c := testClassifier(t)
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure: 0.1,
			models.FeatureDeltaExposure: -1.4,
		},
		raws: map[string]float64{
			models.FeaturePriceChangePct: -0.1,
			models.FeatureDarkPoolShare:  0.55,
		},
	})
	res := c.Classify(set)
	if res.Label != models.RegimeAbsorption {
		t.Fatalf("label = %s, want %s", res.Label, models.RegimeAbsorption)
	}
}

func TestClassifyDistribution(t *testing.T) {
	c := testClassifier(t)
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure: 0.1,
			models.FeatureDeltaExposure: 1.3,
		},
		raws: map[string]float64{
			models.FeaturePriceChangePct: 0.2,
		},
	})
	res := c.Classify(set)
	if res.Label != models.RegimeDistribution {
		t.Fatalf("label = %s, want %s", res.Label, models.RegimeDistribution)
	}
	if res.Priority != 5 {
		t.Fatalf("priority = %d, want 5", res.Priority)
	}
}

func TestClassifyNeutralFallback(t *testing.T) {
	c := testClassifier(t)
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure: 0.2,
			models.FeatureDeltaExposure: -0.1,
		},
		raws: map[string]float64{
			models.FeatureDarkPoolShare:  0.35,
			models.FeaturePriceChangePct: 1.4,
		},
	})
	res := c.Classify(set)
	if res.Label != models.RegimeNeutral {
		t.Fatalf("label = %s, want %s", res.Label, models.RegimeNeutral)
	}
	if len(res.Traces) != len(c.Rules()) {
		t.Fatalf("traces = %d, want all %d rules recorded", len(res.Traces), len(c.Rules()))
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := testClassifier(t)
	set := makeSet(setInput{
		deviations: map[string]float64{
			models.FeatureGammaExposure: -1.8,
			models.FeatureDeltaExposure: 0.2,
		},
		percentiles: map[string]float64{
			models.FeatureImpactPerVolume: 75,
		},
	})
	first := c.Classify(set)
	for i := 0; i < 5; i++ {
		if got := c.Classify(set); got.Label != first.Label || got.Priority != first.Priority {
			t.Fatalf("classification is not stable across repeated runs")
		}
	}
}
