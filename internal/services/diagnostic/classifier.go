package diagnostic

import (
	"fmt"

	"MMDiag/internal/domain/models"
)

// Rule is one entry of the decision list: a predicate, a label, and a fixed
// priority. The predicate also returns the condition values it evaluated so
// the explainer can show them, including for rules that did not match.
type Rule struct {
	Label     models.RegimeLabel
	Priority  int
	Predicate func(set *models.NormalizedFeatureSet, t Thresholds) (matched bool, conditions map[string]float64)
}

// Classifier evaluates a strictly ordered, short-circuiting rule list.
// It is a pure function of the normalized set: identical inputs always yield
// the identical label. There is no partial credit and no ties; only the first
// satisfying rule governs.
type Classifier struct {
	params Params
	rules  []Rule
}

// NewClassifier builds the classifier with the fixed rule order.
func NewClassifier(params Params) (*Classifier, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("classifier params: %w", err)
	}
	return &Classifier{params: params, rules: buildRules()}, nil
}

// Rules exposes the ordered decision list for auditing and tests.
func (c *Classifier) Rules() []Rule { return c.rules }

// Classify assigns exactly one regime label. If any required deviation
// feature is excluded the result is Undetermined: a first-class outcome, not
// an error.
func (c *Classifier) Classify(set *models.NormalizedFeatureSet) models.RegimeResult {
	res := models.RegimeResult{
		Instrument: set.Instrument,
		Date:       set.Date,
	}

	var missing []string
	for _, f := range models.RequiredDeviationFeatures {
		if _, ok := set.Deviation(f); !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		res.Label = models.RegimeUndetermined
		res.Priority = 0
		res.MissingRequired = missing
		return res
	}

	for _, rule := range c.rules {
		matched, conditions := rule.Predicate(set, c.params.Thresholds)
		res.Traces = append(res.Traces, models.RuleTrace{
			Label:      rule.Label,
			Priority:   rule.Priority,
			Matched:    matched,
			Conditions: conditions,
		})
		if matched {
			res.Label = rule.Label
			res.Priority = rule.Priority
			return res
		}
	}

	res.Label = models.RegimeNeutral
	res.Priority = len(c.rules) + 1
	return res
}

// buildRules returns the decision list in its fixed evaluation order.
// Conditions on quantities that were not observed fail the rule; they are
// never defaulted.
func buildRules() []Rule {
	return []Rule{
		{
			Label:    models.RegimeGammaPositive,
			Priority: 1,
			Predicate: func(set *models.NormalizedFeatureSet, t Thresholds) (bool, map[string]float64) {
				gamma, _ := set.Deviation(models.FeatureGammaExposure)
				conds := map[string]float64{"gamma_deviation": gamma}
				effPct, effOK := set.Percentile(models.FeaturePriceEfficiency)
				if effOK {
					conds["price_efficiency_pct"] = effPct
				}
				return gamma > t.GammaExtreme && effOK && effPct < t.MedianPct, conds
			},
		},
		{
			Label:    models.RegimeGammaNegative,
			Priority: 2,
			Predicate: func(set *models.NormalizedFeatureSet, t Thresholds) (bool, map[string]float64) {
				gamma, _ := set.Deviation(models.FeatureGammaExposure)
				conds := map[string]float64{"gamma_deviation": gamma}
				impactPct, impOK := set.Percentile(models.FeatureImpactPerVolume)
				if impOK {
					conds["impact_per_volume_pct"] = impactPct
				}
				return gamma < -t.GammaExtreme && impOK && impactPct > t.MedianPct, conds
			},
		},
		{
			Label:    models.RegimeDarkAccumulation,
			Priority: 3,
			Predicate: func(set *models.NormalizedFeatureSet, t Thresholds) (bool, map[string]float64) {
				conds := map[string]float64{}
				dark, darkOK := set.Raw(models.FeatureDarkPoolShare)
				if darkOK {
					conds["dark_pool_share"] = dark
				}
				block, blockOK := set.Deviation(models.FeatureBlockIntensity)
				if blockOK {
					conds["block_deviation"] = block
				}
				return darkOK && dark > t.DarkDominant && blockOK && block > t.BlockElevated, conds
			},
		},
		{
			Label:    models.RegimeAbsorption,
			Priority: 4,
			Predicate: func(set *models.NormalizedFeatureSet, t Thresholds) (bool, map[string]float64) {
				delta, _ := set.Deviation(models.FeatureDeltaExposure)
				conds := map[string]float64{"delta_deviation": delta}
				ret, retOK := set.Raw(models.FeaturePriceChangePct)
				if retOK {
					conds["price_change_pct"] = ret
				}
				dark, darkOK := set.Raw(models.FeatureDarkPoolShare)
				if darkOK {
					conds["dark_pool_share"] = dark
				}
				return delta < -t.DeltaElevated &&
					retOK && ret >= t.PriceStableLowPct &&
					darkOK && dark > t.DarkElevated, conds
			},
		},
		{
			Label:    models.RegimeDistribution,
			Priority: 5,
			Predicate: func(set *models.NormalizedFeatureSet, t Thresholds) (bool, map[string]float64) {
				delta, _ := set.Deviation(models.FeatureDeltaExposure)
				conds := map[string]float64{"delta_deviation": delta}
				ret, retOK := set.Raw(models.FeaturePriceChangePct)
				if retOK {
					conds["price_change_pct"] = ret
				}
				return delta > t.DeltaElevated && retOK && ret <= t.PriceStableHighPct, conds
			},
		},
	}
}
