package diagnostic

import (
	"fmt"
	"sort"

	"MMDiag/internal/domain/models"
)

// Normalizer converts a day's raw feature values into standardized deviations
// against the instrument's baseline. It enforces the minimum-observation rule
// and the z-score/percentile separation: deviations feed classification,
// percentiles feed magnitude scoring, and the two are never swapped.
type Normalizer struct {
	params Params
}

// NewNormalizer builds a normalizer with validated params.
func NewNormalizer(params Params) (*Normalizer, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("normalizer params: %w", err)
	}
	return &Normalizer{params: params}, nil
}

// Normalize produces the NormalizedFeatureSet for one (instrument, date).
// The baseline must be a consistent snapshot for the full duration of the
// call. A value outside its defined domain is a data-quality failure and
// aborts the day's run for this instrument.
func (n *Normalizer) Normalize(rec *models.FeatureRecord, baseline *models.Baseline) (*models.NormalizedFeatureSet, error) {
	if baseline == nil {
		return nil, models.ErrMissingBaseline
	}
	if baseline.Instrument != rec.Instrument {
		return nil, fmt.Errorf("baseline of %s used for %s: instruments are isolated",
			baseline.Instrument, rec.Instrument)
	}
	if err := rec.ValidateDomains(); err != nil {
		return nil, err
	}

	set := &models.NormalizedFeatureSet{
		Instrument:    rec.Instrument,
		Date:          rec.Date,
		Features:      make(map[string]models.NormalizedFeature),
		Raws:          make(map[string]float64, len(rec.Values)),
		BaselineState: baseline.State(),
	}
	for feature, v := range rec.Values {
		set.Raws[feature] = v
	}

	for _, feature := range models.BaselineFeatures {
		raw, observed := rec.Value(feature)
		if !observed {
			set.Excluded = append(set.Excluded, models.ExcludedFeature{
				Feature:      feature,
				Reason:       models.ExclusionNotObserved,
				Detail:       "value not observed; missing data is never imputed",
				Observations: baseline.ObservationCount(feature),
			})
			continue
		}

		count := baseline.ObservationCount(feature)
		if count < n.params.MinObs {
			set.Excluded = append(set.Excluded, models.ExcludedFeature{
				Feature:      feature,
				Reason:       models.ExclusionInsufficientHistory,
				Detail:       fmt.Sprintf("insufficient history (n=%d < %d)", count, n.params.MinObs),
				Observations: count,
			})
			continue
		}

		stats := baseline.Stats[feature]
		if degenerateStd(stats.Std, stats.Mean) {
			set.Excluded = append(set.Excluded, models.ExcludedFeature{
				Feature:      feature,
				Reason:       models.ExclusionDegenerateStd,
				Detail:       "degenerate baseline distribution (std~0)",
				Observations: count,
			})
			continue
		}

		set.Features[feature] = models.NormalizedFeature{
			Feature:    feature,
			Raw:        raw,
			Deviation:  (raw - stats.Mean) / stats.Std,
			Percentile: n.windowPercentile(raw, baseline, feature),
		}
	}

	sort.Slice(set.Excluded, func(i, j int) bool { return set.Excluded[i].Feature < set.Excluded[j].Feature })
	return set, nil
}

// windowPercentile ranks the raw value against the baseline's windowed
// observations with the fixed midrank tie rule.
func (n *Normalizer) windowPercentile(value float64, baseline *models.Baseline, feature string) float64 {
	return percentileRank(value, baseline.HistoryValues(feature))
}
