package models

import "time"

// Canonical feature names. Every component references features by these
// identifiers; raw ingestion payloads are mapped onto them at the boundary.
const (
	FeatureDarkPoolShare   = "dark_pool_share"   // fraction of volume executed off-exchange, [0,1]
	FeatureGammaExposure   = "gamma_exposure"    // net dealer gamma exposure (dealer perspective)
	FeatureDeltaExposure   = "delta_exposure"    // net dealer delta exposure (dealer perspective)
	FeatureBlockIntensity  = "block_intensity"   // large-print frequency/volume proxy
	FeatureIVSkew          = "iv_skew"           // put/call implied volatility skew
	FeatureVenueShift      = "venue_shift"       // day-over-day change in lit/dark mix
	FeaturePriceChangePct  = "price_change_pct"  // close-to-close return, percent
	FeatureDailyRangePct   = "daily_range_pct"   // (high-low)/close, percent
	FeaturePriceEfficiency = "price_efficiency"  // price-efficiency proxy (lower = more controlled)
	FeatureImpactPerVolume = "impact_per_volume" // |close-open| per unit volume
)

// BaselineFeatures is the set of features a baseline tracks distribution
// statistics for. Order is fixed so serialized baselines stay stable.
var BaselineFeatures = []string{
	FeatureDarkPoolShare,
	FeatureGammaExposure,
	FeatureDeltaExposure,
	FeatureBlockIntensity,
	FeatureIVSkew,
	FeatureVenueShift,
	FeatureDailyRangePct,
	FeaturePriceEfficiency,
	FeatureImpactPerVolume,
}

// ScoreFeatures are the features that participate in the unusualness score.
var ScoreFeatures = []string{
	FeatureDarkPoolShare,
	FeatureGammaExposure,
	FeatureVenueShift,
	FeatureBlockIntensity,
	FeatureIVSkew,
}

// RequiredDeviationFeatures must have usable deviations for regime
// classification; if any is excluded the regime is Undetermined.
var RequiredDeviationFeatures = []string{
	FeatureGammaExposure,
	FeatureDeltaExposure,
}

// FeatureRecord is one instrument-day of raw metric observations.
// Records are immutable and append-only: a metric absent from Values was not
// observed that day and is never imputed.
type FeatureRecord struct {
	Instrument string             `json:"instrument"`
	Date       time.Time          `json:"date"`
	Values     map[string]float64 `json:"values"`
	Source     string             `json:"source,omitempty"`
}

// Has reports whether the feature was observed.
func (r *FeatureRecord) Has(feature string) bool {
	_, ok := r.Values[feature]
	return ok
}

// Value returns the observed value and whether it was present.
func (r *FeatureRecord) Value(feature string) (float64, bool) {
	v, ok := r.Values[feature]
	return v, ok
}

// featureDomains defines closed value domains for features that have one.
// Values outside the domain are a data-quality failure, never clamped.
var featureDomains = map[string][2]float64{
	FeatureDarkPoolShare: {0, 1},
}

// ValidateDomains checks every observed value against its defined domain.
func (r *FeatureRecord) ValidateDomains() error {
	for feature, bounds := range featureDomains {
		v, ok := r.Values[feature]
		if !ok {
			continue
		}
		if v < bounds[0] || v > bounds[1] {
			return &InvalidDomainValueError{
				Instrument: r.Instrument,
				Feature:    feature,
				Value:      v,
				Min:        bounds[0],
				Max:        bounds[1],
			}
		}
	}
	return nil
}
