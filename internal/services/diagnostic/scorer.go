package diagnostic

import (
	"fmt"
	"sort"

	"MMDiag/internal/domain/models"
)

// Scorer produces the bounded unusualness magnitude for one day. The raw
// score is the weighted sum of absolute deviations over the score feature
// set; the final score is the raw score's midrank percentile within the
// instrument's own raw-score history.
//
// Weights are fixed. When a feature is excluded its term is skipped and the
// remaining weights are NOT renormalized, so a day with missing features can
// only score lower, never artificially higher.
type Scorer struct {
	params Params
}

// NewScorer builds a scorer with validated params.
func NewScorer(params Params) (*Scorer, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("scorer params: %w", err)
	}
	return &Scorer{params: params}, nil
}

// Score computes the day's unusualness against the given raw-score history.
// The history must contain only raw scores from strictly earlier dates;
// callers enforce that ordering. With an empty history the final score is 50:
// a single point is neither high nor low within its own distribution.
//
// When every score feature is excluded the score is undefined, which is a
// distinct outcome from a defined score of zero.
func (s *Scorer) Score(set *models.NormalizedFeatureSet, history []float64) models.UnusualnessResult {
	res := models.UnusualnessResult{
		Instrument: set.Instrument,
		Date:       set.Date,
		HistoryLen: len(history),
	}

	var raw float64
	for _, feature := range models.ScoreFeatures {
		dev, ok := set.Deviation(feature)
		if !ok {
			continue
		}
		w := s.params.Weights[feature]
		contribution := w * abs(dev)
		raw += contribution
		res.Components = append(res.Components, models.ScoreComponent{
			Feature:      feature,
			Weight:       w,
			Deviation:    dev,
			Contribution: contribution,
		})
	}
	if len(res.Components) == 0 {
		return res
	}
	sort.Slice(res.Components, func(i, j int) bool {
		return res.Components[i].Contribution > res.Components[j].Contribution
	})

	res.Defined = true
	res.RawScore = raw
	res.Score = percentileRank(raw, history)
	res.Band = models.BandForScore(res.Score)
	return res
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
