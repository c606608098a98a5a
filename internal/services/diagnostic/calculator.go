package diagnostic

import (
	"fmt"
	"math"
	"sort"
	"time"

	"MMDiag/internal/domain/models"
	applogger "MMDiag/pkg/logger"
)

// BaselineCalculator computes and incrementally updates per-instrument
// baselines. It is the only writer of baseline state; one logical writer per
// instrument per update cycle.
//
// Statistics follow the cold-start rule: while elapsed days t <= W the window
// expands (sample variance over all t observations, undefined for t < 2);
// past W statistics cover a fixed trailing slice of W observations. Histories
// retain one observation beyond W so that SnapshotBefore still sees the full
// window that existed before the day was folded in; without the extra entry a
// rerun of an already-applied day would rank against W-1 observations.
type BaselineCalculator struct {
	params Params
	l      *applogger.Logger
}

// NewBaselineCalculator builds a calculator with validated params.
func NewBaselineCalculator(params Params, l *applogger.Logger) (*BaselineCalculator, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("baseline calculator params: %w", err)
	}
	return &BaselineCalculator{params: params, l: l}, nil
}

// Window returns the configured trailing window length.
func (c *BaselineCalculator) Window() int { return c.params.Window }

// Compute builds a baseline from ordered historical records for one
// instrument. Records must be for a single instrument; mixing instruments is
// an error, never a merge.
func (c *BaselineCalculator) Compute(instrument string, records []models.FeatureRecord) (*models.Baseline, error) {
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	for i := range records {
		if records[i].Instrument != instrument {
			return nil, fmt.Errorf("record %d belongs to %s, not %s: baselines are never pooled",
				i, records[i].Instrument, instrument)
		}
	}

	ordered := append([]models.FeatureRecord(nil), records...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	b := &models.Baseline{
		Instrument: instrument,
		Type:       models.ClassifyInstrument(instrument),
		Window:     c.params.Window,
		MinObs:     c.params.MinObs,
		Stats:      make(map[string]models.DistributionStats),
		History:    make(map[string][]models.Observation),
	}

	for i := range ordered {
		c.appendObservations(b, &ordered[i])
	}
	c.recomputeDynamic(b)
	c.recomputeLockedGroup(b)
	if len(ordered) > 0 {
		b.UpdatedAt = ordered[len(ordered)-1].Date
	}
	return b, nil
}

// Update appends one day's record and recomputes dynamic statistics.
// Re-applying a record for an already-seen date replaces that day's
// observations, so recomputing a baseline twice from identical input yields
// numerically identical statistics. Locked statistics are untouched.
//
// Returned drift warnings are non-fatal and never block processing.
func (c *BaselineCalculator) Update(b *models.Baseline, rec *models.FeatureRecord) ([]models.DriftWarning, error) {
	if rec.Instrument != b.Instrument {
		return nil, fmt.Errorf("record for %s applied to baseline of %s: instruments are isolated",
			rec.Instrument, b.Instrument)
	}

	prev := make(map[string]models.DistributionStats, len(b.Stats))
	for k, v := range b.Stats {
		prev[k] = v
	}

	c.appendObservations(b, rec)
	c.recomputeDynamic(b)
	if rec.Date.After(b.UpdatedAt) {
		b.UpdatedAt = rec.Date
	}

	return c.detectDrift(b, prev, rec.Date), nil
}

// RecomputeLocked refreshes the locked statistic group from the current
// window. This is the explicit periodic trigger; nothing else writes
// Baseline.Locked.
func (c *BaselineCalculator) RecomputeLocked(b *models.Baseline, asOf time.Time) []models.DriftWarning {
	prev := make(map[string]models.DistributionStats, len(b.Stats))
	for k, v := range b.Stats {
		prev[k] = v
	}
	c.recomputeDynamic(b)
	c.recomputeLockedGroup(b)
	b.Locked.RecomputedAt = asOf
	return c.detectDrift(b, prev, asOf)
}

// appendObservations merges one record into the per-feature histories,
// replacing same-date entries. Histories are trimmed to W+1 entries, one more
// than the statistics window, to keep snapshots of applied days exact.
func (c *BaselineCalculator) appendObservations(b *models.Baseline, rec *models.FeatureRecord) {
	if rec.Date.After(b.UpdatedAt) || b.ElapsedDays == 0 {
		b.ElapsedDays++
	}
	for _, f := range models.BaselineFeatures {
		v, ok := rec.Value(f)
		if !ok {
			continue // missing stays missing; never backfilled
		}
		obs := b.History[f]
		replaced := false
		for i := range obs {
			if obs[i].Date.Equal(rec.Date) {
				obs[i].Value = v
				replaced = true
				break
			}
		}
		if !replaced {
			obs = append(obs, models.Observation{Date: rec.Date, Value: v})
			sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
		}
		if keep := c.params.Window + 1; len(obs) > keep {
			obs = obs[len(obs)-keep:]
		}
		b.History[f] = obs
	}
}

// recomputeDynamic rebuilds the dynamic statistic group over the trailing W
// values of each history. The window is bounded, so this never rescans full
// history.
func (c *BaselineCalculator) recomputeDynamic(b *models.Baseline) {
	for _, f := range models.BaselineFeatures {
		values := b.HistoryValues(f)
		if len(values) > c.params.Window {
			values = values[len(values)-c.params.Window:]
		}
		if len(values) == 0 {
			delete(b.Stats, f)
			continue
		}
		if s, ok := computeStats(values); ok {
			b.Stats[f] = s
		}
	}
}

// recomputeLockedGroup derives the structural statistics. Typical dark-share
// range is mean ± 1.5σ bounded to the share domain; block intensity keeps its
// full distribution for structural comparisons.
func (c *BaselineCalculator) recomputeLockedGroup(b *models.Baseline) {
	if s, ok := b.Stats[models.FeatureDarkPoolShare]; ok {
		b.Locked.DarkShareTypicalLow = math.Max(0, s.Mean-1.5*s.Std)
		b.Locked.DarkShareTypicalHigh = math.Min(1, s.Mean+1.5*s.Std)
	}
	if s, ok := b.Stats[models.FeatureBlockIntensity]; ok {
		b.Locked.BlockIntensity = s
	}
}

// detectDrift compares new means against the previous period's means and
// warns when the relative shift exceeds δ.
func (c *BaselineCalculator) detectDrift(b *models.Baseline, prev map[string]models.DistributionStats, date time.Time) []models.DriftWarning {
	var warnings []models.DriftWarning
	for _, f := range models.BaselineFeatures {
		old, okOld := prev[f]
		cur, okNew := b.Stats[f]
		if !okOld || !okNew || old.N < b.MinObs {
			continue
		}
		if old.Mean == 0 {
			continue // relative change from zero is undefined
		}
		change := (cur.Mean - old.Mean) / math.Abs(old.Mean)
		if math.Abs(change) > c.params.DriftThreshold {
			w := models.DriftWarning{
				Instrument: b.Instrument,
				Feature:    f,
				PrevMean:   old.Mean,
				NewMean:    cur.Mean,
				ChangePct:  change,
				Threshold:  c.params.DriftThreshold,
				Date:       date,
			}
			warnings = append(warnings, w)
			if c.l != nil {
				c.l.Warn("baseline drift detected",
					applogger.String("instrument", b.Instrument),
					applogger.String("feature", f),
					applogger.Float64("prev_mean", old.Mean),
					applogger.Float64("new_mean", cur.Mean),
					applogger.Float64("change_pct", change*100),
				)
			}
		}
	}
	return warnings
}

// SnapshotBefore returns a consistent read-only view of the baseline as of
// the start of the given date: observations and raw scores dated on or after
// it are dropped and statistics recomputed. Normalizing against this
// snapshot keeps a day's computation independent of whether the day's own
// record was already applied, which is what makes reprocessing idempotent.
func (c *BaselineCalculator) SnapshotBefore(b *models.Baseline, date time.Time) *models.Baseline {
	snap := b.Clone()
	for f, obs := range snap.History {
		kept := obs[:0]
		for _, o := range obs {
			if o.Date.Before(date) {
				kept = append(kept, o)
			}
		}
		if len(kept) > c.params.Window {
			kept = kept[len(kept)-c.params.Window:]
		}
		snap.History[f] = kept
	}
	keptScores := snap.ScoreHist[:0]
	for _, p := range snap.ScoreHist {
		if p.Date.Before(date) {
			keptScores = append(keptScores, p)
		}
	}
	if len(keptScores) > c.params.Window {
		keptScores = keptScores[len(keptScores)-c.params.Window:]
	}
	snap.ScoreHist = keptScores
	c.recomputeDynamic(snap)
	return snap
}
