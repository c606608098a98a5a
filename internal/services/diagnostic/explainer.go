package diagnostic

import (
	"fmt"
	"sort"
	"strings"

	"MMDiag/internal/domain/models"
)

// maxDrivers caps how many contributing factors an explanation names.
const maxDrivers = 3

// Explainer turns the day's structured results into a deterministic
// natural-language rationale. Same inputs, same text: explanations are
// derived, never generated.
type Explainer struct {
	params Params
}

// NewExplainer builds an explainer with validated params.
func NewExplainer(params Params) (*Explainer, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("explainer params: %w", err)
	}
	return &Explainer{params: params}, nil
}

// Explain composes the day's explanation record. It always states the
// baseline state, names the top weighted-contribution drivers, and lists
// every exclusion with its reason so a reader can tell "quiet day" apart
// from "blind day".
func (e *Explainer) Explain(set *models.NormalizedFeatureSet, regime models.RegimeResult, score models.UnusualnessResult) models.ExplanationRecord {
	rec := models.ExplanationRecord{
		Instrument:    set.Instrument,
		Date:          set.Date,
		Exclusions:    set.Excluded,
		BaselineState: set.BaselineState,
	}

	for _, comp := range score.Components {
		if len(rec.Drivers) >= maxDrivers {
			break
		}
		if comp.Contribution == 0 {
			break
		}
		direction := "elevated"
		if comp.Deviation < 0 {
			direction = "depressed"
		}
		pct := 0.0
		if score.RawScore > 0 {
			pct = comp.Contribution / score.RawScore * 100
		}
		rec.Drivers = append(rec.Drivers, models.Driver{
			Feature:         comp.Feature,
			Deviation:       comp.Deviation,
			Weight:          comp.Weight,
			ContributionPct: pct,
			Direction:       direction,
		})
	}

	rec.Summary = e.summary(set, regime, score)
	rec.Text = e.text(set, regime, score, rec.Drivers)
	return rec
}

func (e *Explainer) summary(set *models.NormalizedFeatureSet, regime models.RegimeResult, score models.UnusualnessResult) string {
	if !score.Defined {
		return fmt.Sprintf("%s %s: regime %s, unusualness undefined (all scoring features excluded), baseline %s",
			set.Instrument, set.Date.Format("2006-01-02"), regime.Label, set.BaselineState)
	}
	return fmt.Sprintf("%s %s: regime %s, unusualness %.0f/100 (%s), baseline %s",
		set.Instrument, set.Date.Format("2006-01-02"), regime.Label, score.Score, score.Band, set.BaselineState)
}

func (e *Explainer) text(set *models.NormalizedFeatureSet, regime models.RegimeResult, score models.UnusualnessResult, drivers []models.Driver) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Diagnostic for %s on %s (baseline %s)\n",
		set.Instrument, set.Date.Format("2006-01-02"), set.BaselineState)

	fmt.Fprintf(&b, "Regime: %s", regime.Label)
	if len(regime.MissingRequired) > 0 {
		fmt.Fprintf(&b, " (required deviations unavailable: %s)", strings.Join(regime.MissingRequired, ", "))
	} else if matched := matchedTrace(regime); matched != nil {
		fmt.Fprintf(&b, " via rule %d: %s", matched.Priority, conditionString(matched.Conditions))
	}
	b.WriteString("\n")

	if !score.Defined {
		b.WriteString("Unusualness: undefined, every scoring feature was excluded today\n")
	} else {
		fmt.Fprintf(&b, "Unusualness: %.1f/100 (%s), raw %.3f ranked against %d prior days\n",
			score.Score, score.Band, score.RawScore, score.HistoryLen)
	}

	if len(drivers) > 0 {
		b.WriteString("Top drivers:\n")
		for _, d := range drivers {
			fmt.Fprintf(&b, "  - %s %s at %+.2f standard deviations (weight %.2f, %.0f%% of raw score)\n",
				d.Feature, d.Direction, d.Deviation, d.Weight, d.ContributionPct)
		}
	}

	if len(set.Excluded) > 0 {
		fmt.Fprintf(&b, "Excluded features (%d):\n", len(set.Excluded))
		for _, ex := range set.Excluded {
			fmt.Fprintf(&b, "  - %s: %s\n", ex.Feature, ex.Detail)
		}
	}

	return b.String()
}

// matchedTrace returns the trace of the winning rule, nil for Neutral and
// Undetermined outcomes.
func matchedTrace(regime models.RegimeResult) *models.RuleTrace {
	for i := range regime.Traces {
		if regime.Traces[i].Matched {
			return &regime.Traces[i]
		}
	}
	return nil
}

// conditionString renders rule condition values in a stable key order.
func conditionString(conditions map[string]float64) string {
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, conditions[k]))
	}
	return strings.Join(parts, ", ")
}
