package models

import "time"

// Exclusion reasons used by the normalizer. Reason strings are part of the
// output contract and show up verbatim in explanations.
const (
	ExclusionInsufficientHistory = "insufficient_history"
	ExclusionDegenerateStd       = "degenerate_std"
	ExclusionNotObserved         = "not_observed"
)

// ExcludedFeature records why a feature was left out of the day's normalized
// set. Exclusions are data, not errors.
type ExcludedFeature struct {
	Feature      string `json:"feature"`
	Reason       string `json:"reason"`
	Detail       string `json:"detail"`
	Observations int    `json:"observations"`
}

// NormalizedFeature carries both representations of a feature's deviation.
// Deviation (z-score) feeds classification thresholds; Percentile feeds
// magnitude scoring and display. The two are not interchangeable.
type NormalizedFeature struct {
	Feature    string  `json:"feature"`
	Raw        float64 `json:"raw"`
	Deviation  float64 `json:"deviation"`  // (raw - baseline mean) / baseline std
	Percentile float64 `json:"percentile"` // midrank percentile vs baseline window, 0-100
}

// NormalizedFeatureSet is the day's standardized view of an instrument.
// Features holds only features with a defined deviation; Raws holds every
// observed raw value, including those whose deviation was excluded.
type NormalizedFeatureSet struct {
	Instrument    string                       `json:"instrument"`
	Date          time.Time                    `json:"date"`
	Features      map[string]NormalizedFeature `json:"features"`
	Raws          map[string]float64           `json:"raws"`
	Excluded      []ExcludedFeature            `json:"excluded"`
	BaselineState BaselineState                `json:"baseline_state"`
}

// Deviation returns the standardized deviation for a feature if it was
// normalized.
func (s *NormalizedFeatureSet) Deviation(feature string) (float64, bool) {
	f, ok := s.Features[feature]
	if !ok {
		return 0, false
	}
	return f.Deviation, true
}

// Percentile returns the percentile representation for a feature if present.
func (s *NormalizedFeatureSet) Percentile(feature string) (float64, bool) {
	f, ok := s.Features[feature]
	if !ok {
		return 0, false
	}
	return f.Percentile, true
}

// Raw returns the raw observed value for a feature if it was observed that
// day, whether or not its deviation was defined.
func (s *NormalizedFeatureSet) Raw(feature string) (float64, bool) {
	v, ok := s.Raws[feature]
	return v, ok
}

// IsExcluded reports whether the feature carries an exclusion.
func (s *NormalizedFeatureSet) IsExcluded(feature string) bool {
	for _, e := range s.Excluded {
		if e.Feature == feature {
			return true
		}
	}
	return false
}

// RegimeLabel is the single categorical label for a trading day. Exactly one
// label is assigned per (instrument, date).
type RegimeLabel string

const (
	RegimeUndetermined     RegimeLabel = "Undetermined"
	RegimeGammaPositive    RegimeLabel = "Gamma-Positive-Control"
	RegimeGammaNegative    RegimeLabel = "Gamma-Negative-Vacuum"
	RegimeDarkAccumulation RegimeLabel = "Dark-Dominant-Accumulation"
	RegimeAbsorption       RegimeLabel = "Absorption-Like"
	RegimeDistribution     RegimeLabel = "Distribution-Like"
	RegimeNeutral          RegimeLabel = "Neutral"
)

// RuleTrace records one evaluated rule: its condition values and whether it
// matched. Traces are retained for every rule evaluated up to and including
// the match, for the explainer.
type RuleTrace struct {
	Label      RegimeLabel        `json:"label"`
	Priority   int                `json:"priority"`
	Matched    bool               `json:"matched"`
	Conditions map[string]float64 `json:"conditions"`
}

// RegimeResult is the outcome of the decision list for one day.
type RegimeResult struct {
	Instrument string      `json:"instrument"`
	Date       time.Time   `json:"date"`
	Label      RegimeLabel `json:"label"`
	Priority   int         `json:"priority"`
	Traces     []RuleTrace `json:"traces"`
	// MissingRequired lists the required deviation features that forced
	// Undetermined, when applicable.
	MissingRequired []string `json:"missing_required,omitempty"`
}

// ScoreBand is the human-facing interpretation band for the final score.
type ScoreBand string

const (
	BandNormal   ScoreBand = "normal"   // 0-30
	BandElevated ScoreBand = "elevated" // 30-60
	BandUnusual  ScoreBand = "unusual"  // 60-80
	BandExtreme  ScoreBand = "extreme"  // 80-100
)

// BandForScore maps a final 0-100 score onto its interpretation band.
func BandForScore(score float64) ScoreBand {
	switch {
	case score < 30:
		return BandNormal
	case score < 60:
		return BandElevated
	case score < 80:
		return BandUnusual
	default:
		return BandExtreme
	}
}

// ScoreComponent is one weighted term of the raw unusualness score.
type ScoreComponent struct {
	Feature      string  `json:"feature"`
	Weight       float64 `json:"weight"`
	Deviation    float64 `json:"deviation"`
	Contribution float64 `json:"contribution"` // weight * |deviation|
}

// UnusualnessResult is the bounded magnitude outcome for one day. When every
// scoring feature is excluded the score is undefined: Defined is false and
// Score/Band are zero values.
type UnusualnessResult struct {
	Instrument string           `json:"instrument"`
	Date       time.Time        `json:"date"`
	Defined    bool             `json:"defined"`
	RawScore   float64          `json:"raw_score"`
	Score      float64          `json:"score"` // percentile of RawScore vs history, 0-100
	Band       ScoreBand        `json:"band,omitempty"`
	Components []ScoreComponent `json:"components"`
	HistoryLen int              `json:"history_len"` // prior raw scores the rank was taken against
}

// Driver is one top contributing factor in an explanation.
type Driver struct {
	Feature         string  `json:"feature"`
	Deviation       float64 `json:"deviation"`
	Weight          float64 `json:"weight"`
	ContributionPct float64 `json:"contribution_pct"`
	Direction       string  `json:"direction"` // "elevated" or "depressed"
}

// ExplanationRecord is the composed human-readable rationale plus its
// structured inputs.
type ExplanationRecord struct {
	Instrument    string            `json:"instrument"`
	Date          time.Time         `json:"date"`
	Summary       string            `json:"summary"` // one line
	Text          string            `json:"text"`    // full multi-line report
	Drivers       []Driver          `json:"drivers"`
	Exclusions    []ExcludedFeature `json:"exclusions"`
	BaselineState BaselineState     `json:"baseline_state"`
}

// DailyDiagnostic is the combined record handed to downstream consumers, one
// per (instrument, date), append-only and idempotent under reprocessing.
// It deliberately carries no wall-clock fields: rerunning a day with
// identical inputs must produce a bit-identical record.
type DailyDiagnostic struct {
	Instrument  string               `json:"instrument"`
	Date        time.Time            `json:"date"`
	Normalized  NormalizedFeatureSet `json:"normalized"`
	Regime      RegimeResult         `json:"regime"`
	Unusualness UnusualnessResult    `json:"unusualness"`
	Explanation ExplanationRecord    `json:"explanation"`
}
