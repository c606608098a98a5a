package diagnostic

import (
	"math"
	"testing"
	"time"

	"MMDiag/internal/domain/models"
)

var day0 = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

func dayRecord(instrument string, day int, values map[string]float64) models.FeatureRecord {
	return models.FeatureRecord{
		Instrument: instrument,
		Date:       day0.AddDate(0, 0, day),
		Values:     values,
	}
}

func darkShareRecords(instrument string, values []float64) []models.FeatureRecord {
	recs := make([]models.FeatureRecord, len(values))
	for i, v := range values {
		recs[i] = dayRecord(instrument, i, map[string]float64{models.FeatureDarkPoolShare: v})
	}
	return recs
}

func testCalculator(t *testing.T, p Params) *BaselineCalculator {
	t.Helper()
	c, err := NewBaselineCalculator(p, nil)
	if err != nil {
		t.Fatalf("NewBaselineCalculator: %v", err)
	}
	return c
}

func TestComputeRejectsMixedInstruments(t *testing.T) {
	c := testCalculator(t, DefaultParams())
	recs := []models.FeatureRecord{
		dayRecord("AAPL", 0, map[string]float64{models.FeatureDarkPoolShare: 0.4}),
		dayRecord("MSFT", 1, map[string]float64{models.FeatureDarkPoolShare: 0.4}),
	}
	if _, err := c.Compute("AAPL", recs); err == nil {
		t.Fatalf("expected error for mixed instruments")
	}
}

func TestComputeExpandingWindow(t *testing.T) {
	c := testCalculator(t, DefaultParams())
	values := []float64{0.30, 0.35, 0.40, 0.45, 0.50}
	b, err := c.Compute("AAPL", darkShareRecords("AAPL", values))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	s, ok := b.Stats[models.FeatureDarkPoolShare]
	if !ok {
		t.Fatalf("no stats for dark pool share")
	}
	if s.N != 5 {
		t.Fatalf("n = %d, want 5 (expanding window keeps all observations)", s.N)
	}
	if !almostEqual(s.Mean, 0.40) {
		t.Fatalf("mean = %v, want 0.40", s.Mean)
	}
	// sample std over {0.30..0.50 step 0.05}
	want := math.Sqrt(0.025 / 4.0)
	if !almostEqual(s.Std, want) {
		t.Fatalf("std = %v, want %v", s.Std, want)
	}
}

func TestUpdateEvictsBeyondWindow(t *testing.T) {
	p := DefaultParams()
	p.Window = 5
	p.MinObs = 2
	c := testCalculator(t, p)

	b, err := c.Compute("AAPL", darkShareRecords("AAPL", []float64{0.1, 0.2, 0.3, 0.4, 0.5}))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if _, err := c.Update(b, &models.FeatureRecord{
		Instrument: "AAPL",
		Date:       day0.AddDate(0, 0, 5),
		Values:     map[string]float64{models.FeatureDarkPoolShare: 0.6},
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Statistics cover the trailing window; the history keeps one extra
	// observation so a snapshot of the newest day still sees a full window.
	obs := b.History[models.FeatureDarkPoolShare]
	if len(obs) != 6 {
		t.Fatalf("history length = %d, want 6 (window plus one)", len(obs))
	}
	if obs[0].Value != 0.1 {
		t.Fatalf("oldest retained = %v, want 0.1", obs[0].Value)
	}
	s := b.Stats[models.FeatureDarkPoolShare]
	if s.N != 5 || !almostEqual(s.Mean, 0.4) {
		t.Fatalf("windowed stats = %+v, want n=5 mean=0.4 over {0.2..0.6}", s)
	}

	if _, err := c.Update(b, &models.FeatureRecord{
		Instrument: "AAPL",
		Date:       day0.AddDate(0, 0, 6),
		Values:     map[string]float64{models.FeatureDarkPoolShare: 0.7},
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	obs = b.History[models.FeatureDarkPoolShare]
	if len(obs) != 6 {
		t.Fatalf("history length = %d, want 6 after eviction", len(obs))
	}
	if obs[0].Value != 0.2 {
		t.Fatalf("oldest retained = %v, want 0.2 (0.1 evicted)", obs[0].Value)
	}
	s = b.Stats[models.FeatureDarkPoolShare]
	if s.N != 5 || !almostEqual(s.Mean, 0.5) {
		t.Fatalf("windowed stats = %+v, want n=5 mean=0.5 over {0.3..0.7}", s)
	}
}

func TestUpdateIsolatesInstruments(t *testing.T) {
	c := testCalculator(t, DefaultParams())
	b, _ := c.Compute("AAPL", darkShareRecords("AAPL", []float64{0.3, 0.4}))
	rec := dayRecord("MSFT", 2, map[string]float64{models.FeatureDarkPoolShare: 0.5})
	if _, err := c.Update(b, &rec); err == nil {
		t.Fatalf("expected error applying MSFT record to AAPL baseline")
	}
}

func TestUpdateSameDateReplaces(t *testing.T) {
	c := testCalculator(t, DefaultParams())
	b, _ := c.Compute("AAPL", darkShareRecords("AAPL", []float64{0.3, 0.4, 0.5}))

	rec := dayRecord("AAPL", 3, map[string]float64{models.FeatureDarkPoolShare: 0.6})
	if _, err := c.Update(b, &rec); err != nil {
		t.Fatalf("first Update: %v", err)
	}
	first := b.Stats[models.FeatureDarkPoolShare]

	if _, err := c.Update(b, &rec); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	second := b.Stats[models.FeatureDarkPoolShare]

	if first != second {
		t.Fatalf("reapplying the same record changed stats: %+v vs %+v", first, second)
	}
	if len(b.History[models.FeatureDarkPoolShare]) != 4 {
		t.Fatalf("history length = %d, want 4 (same-date replace, not append)",
			len(b.History[models.FeatureDarkPoolShare]))
	}
}

func TestUpdateDetectsDrift(t *testing.T) {
	p := DefaultParams()
	p.MinObs = 2
	c := testCalculator(t, p)

	b, _ := c.Compute("AAPL", darkShareRecords("AAPL", []float64{0.40, 0.40, 0.40}))

	rec := dayRecord("AAPL", 3, map[string]float64{models.FeatureDarkPoolShare: 0.80})
	warnings, err := c.Update(b, &rec)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	// mean moves 0.40 -> 0.50, a 25% relative shift
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	w := warnings[0]
	if w.Feature != models.FeatureDarkPoolShare {
		t.Fatalf("drift feature = %s", w.Feature)
	}
	if !almostEqual(w.ChangePct, 0.25) {
		t.Fatalf("change = %v, want 0.25", w.ChangePct)
	}
}

func TestUpdateSmallShiftNoDrift(t *testing.T) {
	p := DefaultParams()
	p.MinObs = 2
	c := testCalculator(t, p)

	b, _ := c.Compute("AAPL", darkShareRecords("AAPL", []float64{0.40, 0.40, 0.40}))
	rec := dayRecord("AAPL", 3, map[string]float64{models.FeatureDarkPoolShare: 0.42})
	warnings, err := c.Update(b, &rec)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected drift warnings for a 1.25%% shift: %v", warnings)
	}
}

func TestRecomputeLockedSetsTypicalRange(t *testing.T) {
	p := DefaultParams()
	p.MinObs = 2
	c := testCalculator(t, p)

	b, _ := c.Compute("AAPL", darkShareRecords("AAPL", []float64{0.30, 0.40, 0.50}))
	asOf := day0.AddDate(0, 0, 10)
	c.RecomputeLocked(b, asOf)

	if !b.Locked.RecomputedAt.Equal(asOf) {
		t.Fatalf("locked recompute timestamp not set")
	}
	if b.Locked.DarkShareTypicalLow >= b.Locked.DarkShareTypicalHigh {
		t.Fatalf("typical range inverted: [%v, %v]",
			b.Locked.DarkShareTypicalLow, b.Locked.DarkShareTypicalHigh)
	}
	if b.Locked.DarkShareTypicalLow < 0 || b.Locked.DarkShareTypicalHigh > 1 {
		t.Fatalf("typical range outside share domain: [%v, %v]",
			b.Locked.DarkShareTypicalLow, b.Locked.DarkShareTypicalHigh)
	}
}

func TestSnapshotBeforeExcludesDate(t *testing.T) {
	c := testCalculator(t, DefaultParams())
	b, _ := c.Compute("AAPL", darkShareRecords("AAPL", []float64{0.1, 0.2, 0.3, 0.4, 0.5}))
	b.RecordRawScore(day0.AddDate(0, 0, 4), 0.9)

	cut := day0.AddDate(0, 0, 4)
	snap := c.SnapshotBefore(b, cut)

	if n := len(snap.History[models.FeatureDarkPoolShare]); n != 4 {
		t.Fatalf("snapshot history = %d, want 4 (day-4 observation dropped)", n)
	}
	if s := snap.Stats[models.FeatureDarkPoolShare]; s.N != 4 || !almostEqual(s.Mean, 0.25) {
		t.Fatalf("snapshot stats = %+v, want n=4 mean=0.25", s)
	}
	if len(snap.ScoreHist) != 0 {
		t.Fatalf("snapshot score history = %d, want 0", len(snap.ScoreHist))
	}

	// the live baseline is untouched
	if n := len(b.History[models.FeatureDarkPoolShare]); n != 5 {
		t.Fatalf("live history mutated: %d", n)
	}
	if len(b.ScoreHist) != 1 {
		t.Fatalf("live score history mutated: %d", len(b.ScoreHist))
	}
}

func TestSnapshotBeforeIsIdempotent(t *testing.T) {
	c := testCalculator(t, DefaultParams())
	values := []float64{0.1, 0.2, 0.3, 0.4}
	b, _ := c.Compute("AAPL", darkShareRecords("AAPL", values))

	cut := day0.AddDate(0, 0, 3)
	before := c.SnapshotBefore(b, cut).Stats[models.FeatureDarkPoolShare]

	// apply day 3 again, as a reprocessing run would
	rec := dayRecord("AAPL", 3, map[string]float64{models.FeatureDarkPoolShare: 0.4})
	if _, err := c.Update(b, &rec); err != nil {
		t.Fatalf("Update: %v", err)
	}
	after := c.SnapshotBefore(b, cut).Stats[models.FeatureDarkPoolShare]

	if before != after {
		t.Fatalf("snapshot depends on whether the day was applied: %+v vs %+v", before, after)
	}
}

func TestSnapshotBeforeIsIdempotentPastWindow(t *testing.T) {
	p := DefaultParams()
	p.Window = 5
	p.MinObs = 2
	c := testCalculator(t, p)

	// Seed one full window plus one extra day so eviction is already active.
	b, _ := c.Compute("AAPL", darkShareRecords("AAPL", []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}))
	for i := 0; i < 6; i++ {
		b.RecordRawScore(day0.AddDate(0, 0, i), 0.1*float64(i+1))
	}

	cut := day0.AddDate(0, 0, 6)
	first := c.SnapshotBefore(b, cut)
	if s := first.Stats[models.FeatureDarkPoolShare]; s.N != 5 {
		t.Fatalf("snapshot stats n = %d, want full window of 5", s.N)
	}

	rec := dayRecord("AAPL", 6, map[string]float64{models.FeatureDarkPoolShare: 0.7})
	if _, err := c.Update(b, &rec); err != nil {
		t.Fatalf("Update: %v", err)
	}
	b.RecordRawScore(cut, 0.7)

	second := c.SnapshotBefore(b, cut)
	if first.Stats[models.FeatureDarkPoolShare] != second.Stats[models.FeatureDarkPoolShare] {
		t.Fatalf("snapshot stats changed after folding the day in: %+v vs %+v",
			first.Stats[models.FeatureDarkPoolShare], second.Stats[models.FeatureDarkPoolShare])
	}
	if len(first.ScoreHist) != len(second.ScoreHist) {
		t.Fatalf("snapshot score history = %d then %d, want identical",
			len(first.ScoreHist), len(second.ScoreHist))
	}
	for i := range first.ScoreHist {
		if first.ScoreHist[i] != second.ScoreHist[i] {
			t.Fatalf("snapshot score %d changed: %+v vs %+v",
				i, first.ScoreHist[i], second.ScoreHist[i])
		}
	}
}
