package diagnostic

import (
	"fmt"
	"math"

	"MMDiag/internal/domain/models"
)

// Params is the immutable configuration surface of the diagnostic engine.
// It is validated once at startup and passed explicitly into the calculator,
// classifier, and scorer; invalid configurations are rejected at load time,
// never at evaluation time.
type Params struct {
	Window         int     // W, trailing statistics window in trading days
	MinObs         int     // N_min, observations required before a feature is usable
	DriftThreshold float64 // δ, relative mean shift that triggers a drift warning

	// Weights over the complete score feature set. Fixed; never renormalized
	// when features are excluded.
	Weights map[string]float64

	Thresholds Thresholds
}

// Thresholds are the per-rule classification cut-points.
type Thresholds struct {
	GammaExtreme      float64 // |gamma deviation| beyond which dealers' book is extreme (1.5)
	DeltaElevated     float64 // |delta deviation| marking significant exposure (1.0)
	DarkDominant      float64 // dark-pool share fraction for dark dominance (0.70)
	DarkElevated      float64 // dark-pool share fraction for elevated dark activity (0.50)
	BlockElevated     float64 // block intensity deviation for elevated prints (1.0)
	PriceStableLowPct float64 // close-to-close return floor, percent (-0.5)
	PriceStableHighPct float64 // close-to-close return ceiling, percent (+0.5)
	MedianPct         float64 // percentile cut for the efficiency/impact proxies (50)
}

// DefaultParams returns the documented diagnostic defaults. The weights are
// diagnostic, not optimized: they reflect conceptual importance to
// market-maker microstructure.
func DefaultParams() Params {
	return Params{
		Window:         63,
		MinObs:         21,
		DriftThreshold: 0.10,
		Weights: map[string]float64{
			models.FeatureDarkPoolShare:  0.25,
			models.FeatureGammaExposure:  0.25,
			models.FeatureVenueShift:     0.20,
			models.FeatureBlockIntensity: 0.15,
			models.FeatureIVSkew:         0.15,
		},
		Thresholds: Thresholds{
			GammaExtreme:       1.5,
			DeltaElevated:      1.0,
			DarkDominant:       0.70,
			DarkElevated:       0.50,
			BlockElevated:      1.0,
			PriceStableLowPct:  -0.5,
			PriceStableHighPct: 0.5,
			MedianPct:          50,
		},
	}
}

// Validate rejects inconsistent parameter sets.
func (p Params) Validate() error {
	if p.Window < 2 {
		return fmt.Errorf("window must be >= 2, got %d", p.Window)
	}
	if p.MinObs < 2 || p.MinObs > p.Window {
		return fmt.Errorf("min_obs must be in [2, window], got %d", p.MinObs)
	}
	if p.DriftThreshold <= 0 {
		return fmt.Errorf("drift threshold must be positive, got %g", p.DriftThreshold)
	}
	if len(p.Weights) == 0 {
		return fmt.Errorf("score weights are required")
	}
	var sum float64
	for f, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("negative weight for %s", f)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1.0, got %g", sum)
	}
	t := p.Thresholds
	if t.GammaExtreme <= 0 || t.DeltaElevated <= 0 || t.BlockElevated <= 0 {
		return fmt.Errorf("deviation thresholds must be positive")
	}
	if t.DarkDominant <= t.DarkElevated || t.DarkDominant > 1 || t.DarkElevated < 0 {
		return fmt.Errorf("dark-pool thresholds must satisfy 0 <= elevated < dominant <= 1")
	}
	if t.PriceStableLowPct >= t.PriceStableHighPct {
		return fmt.Errorf("price stability band is inverted")
	}
	return nil
}
