package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"MMDiag/internal/domain/models"
	"MMDiag/internal/services/diagnostic"
)

// in-memory fakes

type memBaselineStore struct {
	m map[string]*models.Baseline
}

func newMemBaselineStore() *memBaselineStore {
	return &memBaselineStore{m: make(map[string]*models.Baseline)}
}

func (s *memBaselineStore) Load(_ context.Context, instrument string) (*models.Baseline, error) {
	b, ok := s.m[instrument]
	if !ok {
		return nil, models.ErrMissingBaseline
	}
	return b.Clone(), nil
}

func (s *memBaselineStore) Save(_ context.Context, b *models.Baseline) error {
	s.m[b.Instrument] = b.Clone()
	return nil
}

func (s *memBaselineStore) Exists(_ context.Context, instrument string) (bool, error) {
	_, ok := s.m[instrument]
	return ok, nil
}

func (s *memBaselineStore) List(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out, nil
}

type memHistory struct {
	recs map[string][]models.FeatureRecord
}

func newMemHistory() *memHistory {
	return &memHistory{recs: make(map[string][]models.FeatureRecord)}
}

func (h *memHistory) Append(_ context.Context, rec *models.FeatureRecord) error {
	list := h.recs[rec.Instrument]
	for i := range list {
		if list[i].Date.Equal(rec.Date) {
			list[i] = *rec
			return nil
		}
	}
	h.recs[rec.Instrument] = append(list, *rec)
	return nil
}

func (h *memHistory) GetRange(_ context.Context, instrument string, from, to time.Time) ([]models.FeatureRecord, error) {
	var out []models.FeatureRecord
	for _, r := range h.recs[instrument] {
		if !r.Date.Before(from) && !r.Date.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *memHistory) GetRecent(_ context.Context, instrument string, n int) ([]models.FeatureRecord, error) {
	list := h.recs[instrument]
	if len(list) > n {
		list = list[len(list)-n:]
	}
	return append([]models.FeatureRecord(nil), list...), nil
}

func (h *memHistory) GetDay(_ context.Context, instrument string, date time.Time) (*models.FeatureRecord, error) {
	for _, r := range h.recs[instrument] {
		if r.Date.Equal(date) {
			rec := r
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("no record for %s on %s", instrument, date.Format("2006-01-02"))
}

type memSink struct {
	stored map[string]*models.DailyDiagnostic
	writes int
}

func newMemSink() *memSink {
	return &memSink{stored: make(map[string]*models.DailyDiagnostic)}
}

func sinkKey(instrument string, date time.Time) string {
	return instrument + "|" + date.Format("2006-01-02")
}

func (s *memSink) Store(_ context.Context, d *models.DailyDiagnostic) error {
	s.stored[sinkKey(d.Instrument, d.Date)] = d
	s.writes++
	return nil
}

func (s *memSink) Latest(_ context.Context, instrument string) (*models.DailyDiagnostic, error) {
	var latest *models.DailyDiagnostic
	for _, d := range s.stored {
		if d.Instrument != instrument {
			continue
		}
		if latest == nil || d.Date.After(latest.Date) {
			latest = d
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no diagnostics for %s", instrument)
	}
	return latest, nil
}

func (s *memSink) GetDay(_ context.Context, instrument string, date time.Time) (*models.DailyDiagnostic, error) {
	d, ok := s.stored[sinkKey(instrument, date)]
	if !ok {
		return nil, fmt.Errorf("no diagnostic for %s on %s", instrument, date.Format("2006-01-02"))
	}
	return d, nil
}

// fixtures

var base = time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

func seedRecord(instrument string, day int) models.FeatureRecord {
	return models.FeatureRecord{
		Instrument: instrument,
		Date:       base.AddDate(0, 0, day),
		Values: map[string]float64{
			models.FeatureDarkPoolShare:   0.35 + 0.005*float64(day%9),
			models.FeatureGammaExposure:   100 + 10*float64(day%5),
			models.FeatureDeltaExposure:   -50 + 5*float64(day%7),
			models.FeatureBlockIntensity:  1.0 + 0.1*float64(day%4),
			models.FeatureIVSkew:          0.02 + 0.002*float64(day%6),
			models.FeatureVenueShift:      0.01 * float64(day%3),
			models.FeaturePriceChangePct:  -0.4 + 0.1*float64(day%8),
			models.FeatureDailyRangePct:   1.2 + 0.05*float64(day%5),
			models.FeaturePriceEfficiency: 0.5 + 0.02*float64(day%10),
			models.FeatureImpactPerVolume: 0.001 + 0.0001*float64(day%6),
		},
	}
}

type pipeline struct {
	baselines *memBaselineStore
	history   *memHistory
	sink      *memSink
	calc      *diagnostic.BaselineCalculator
	runner    *DailyRunUseCase
	onboard   *OnboardingUseCase
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	params := diagnostic.DefaultParams()

	calc, err := diagnostic.NewBaselineCalculator(params, nil)
	if err != nil {
		t.Fatalf("NewBaselineCalculator: %v", err)
	}
	normalizer, err := diagnostic.NewNormalizer(params)
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	classifier, err := diagnostic.NewClassifier(params)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	scorer, err := diagnostic.NewScorer(params)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	explainer, err := diagnostic.NewExplainer(params)
	if err != nil {
		t.Fatalf("NewExplainer: %v", err)
	}

	baselines := newMemBaselineStore()
	history := newMemHistory()
	sink := newMemSink()

	runner, err := NewDailyRunUseCase(DailyRunDeps{
		Baselines:  baselines,
		History:    history,
		Sink:       sink,
		Calc:       calc,
		Normalizer: normalizer,
		Classifier: classifier,
		Scorer:     scorer,
		Explainer:  explainer,
	})
	if err != nil {
		t.Fatalf("NewDailyRunUseCase: %v", err)
	}

	return &pipeline{
		baselines: baselines,
		history:   history,
		sink:      sink,
		calc:      calc,
		runner:    runner,
		onboard:   NewOnboardingUseCase(baselines, history, calc, nil),
	}
}

func (p *pipeline) seed(t *testing.T, instrument string, days int) {
	t.Helper()
	ctx := context.Background()
	recs := make([]models.FeatureRecord, days)
	for i := 0; i < days; i++ {
		recs[i] = seedRecord(instrument, i)
	}
	if _, err := p.onboard.OnboardFromRecords(ctx, instrument, recs, false); err != nil {
		t.Fatalf("OnboardFromRecords: %v", err)
	}
}

// tests

func TestDailyRunProducesDiagnostic(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, "AAPL", 30)
	ctx := context.Background()

	rec := seedRecord("AAPL", 30)
	if err := p.history.Append(ctx, &rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	d, err := p.runner.Run(ctx, "AAPL", rec.Date)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if d.Regime.Label == "" {
		t.Fatalf("no regime label assigned")
	}
	if !d.Unusualness.Defined {
		t.Fatalf("score undefined with a complete 30-day baseline")
	}
	if d.Normalized.BaselineState != models.BaselineComplete {
		t.Fatalf("baseline state = %s, want %s", d.Normalized.BaselineState, models.BaselineComplete)
	}
	if d.Explanation.Summary == "" {
		t.Fatalf("no explanation summary")
	}

	// the day's record was folded into the live baseline
	b, err := p.baselines.Load(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Load baseline: %v", err)
	}
	if !b.UpdatedAt.Equal(rec.Date) {
		t.Fatalf("baseline not updated: %v", b.UpdatedAt)
	}
	if len(b.ScoreHist) == 0 {
		t.Fatalf("raw score not recorded")
	}
}

func TestDailyRunReprocessingIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, "AAPL", 30)
	ctx := context.Background()

	rec := seedRecord("AAPL", 30)
	if err := p.history.Append(ctx, &rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	first, err := p.runner.Run(ctx, "AAPL", rec.Date)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// reprocess the same day twice more; baseline now already contains it
	for i := 0; i < 2; i++ {
		again, err := p.runner.Run(ctx, "AAPL", rec.Date)
		if err != nil {
			t.Fatalf("rerun %d: %v", i, err)
		}
		againJSON, err := json.Marshal(again)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(firstJSON) != string(againJSON) {
			t.Fatalf("rerun %d produced a different diagnostic:\n%s\nvs\n%s", i, firstJSON, againJSON)
		}
	}

	// history sizes did not grow from reprocessing
	b, _ := p.baselines.Load(ctx, "AAPL")
	if n := len(b.History[models.FeatureDarkPoolShare]); n != 31 {
		t.Fatalf("observations = %d, want 31 (replace, not append)", n)
	}
	if n := len(b.ScoreHist); n != 1 {
		t.Fatalf("score history = %d, want 1", n)
	}
}

func TestDailyRunReprocessingIsIdempotentPastWindow(t *testing.T) {
	p := newPipeline(t)
	window := p.calc.Window()
	p.seed(t, "AAPL", window)
	ctx := context.Background()

	// Day `window` is the first day processed with eviction active, so the
	// rerun must see the same trailing window the first run saw.
	rec := seedRecord("AAPL", window)
	if err := p.history.Append(ctx, &rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	first, err := p.runner.Run(ctx, "AAPL", rec.Date)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	again, err := p.runner.Run(ctx, "AAPL", rec.Date)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	againJSON, err := json.Marshal(again)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(firstJSON) != string(againJSON) {
		t.Fatalf("rerun past the window produced a different diagnostic:\n%s\nvs\n%s", firstJSON, againJSON)
	}

	b, _ := p.baselines.Load(ctx, "AAPL")
	if n := len(b.History[models.FeatureDarkPoolShare]); n != window+1 {
		t.Fatalf("observations = %d, want %d (window plus one retained)", n, window+1)
	}
	if s := b.Stats[models.FeatureDarkPoolShare]; s.N != window {
		t.Fatalf("stats n = %d, want %d (statistics cover the window only)", s.N, window)
	}
}

func TestDailyRunMissingBaseline(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	rec := seedRecord("TSLA", 0)
	if err := p.history.Append(ctx, &rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := p.runner.Run(ctx, "TSLA", rec.Date); !errors.Is(err, models.ErrMissingBaseline) {
		t.Fatalf("err = %v, want ErrMissingBaseline", err)
	}
}

func TestDailyRunDomainViolationAborts(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, "AAPL", 30)
	ctx := context.Background()

	rec := seedRecord("AAPL", 30)
	rec.Values[models.FeatureDarkPoolShare] = 1.4
	if err := p.history.Append(ctx, &rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	_, err := p.runner.Run(ctx, "AAPL", rec.Date)
	var domainErr *models.InvalidDomainValueError
	if !errors.As(err, &domainErr) {
		t.Fatalf("err = %v, want InvalidDomainValueError", err)
	}
	// nothing was stored and the baseline was not advanced
	if _, err := p.sink.GetDay(ctx, "AAPL", rec.Date); err == nil {
		t.Fatalf("diagnostic stored despite domain violation")
	}
	b, _ := p.baselines.Load(ctx, "AAPL")
	if b.UpdatedAt.Equal(rec.Date) {
		t.Fatalf("baseline advanced despite domain violation")
	}
}

func TestBatchRunIsolatesFailures(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, "AAPL", 30)
	p.seed(t, "MSFT", 30)
	ctx := context.Background()

	date := base.AddDate(0, 0, 30)
	for _, sym := range []string{"AAPL", "MSFT"} {
		rec := seedRecord(sym, 30)
		if err := p.history.Append(ctx, &rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// GOOG has a day record but no baseline
	googRec := seedRecord("GOOG", 30)
	if err := p.history.Append(ctx, &googRec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	batch := NewBatchRunUseCase(p.runner, p.baselines, 2, nil)
	res, err := batch.RunDay(ctx, date, []string{"AAPL", "MSFT", "GOOG"})
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if res.Succeeded != 2 {
		t.Fatalf("succeeded = %d, want 2", res.Succeeded)
	}
	if _, failed := res.Failures["GOOG"]; !failed {
		t.Fatalf("GOOG failure not recorded: %+v", res.Failures)
	}
	if res.Diagnostics["AAPL"] == nil || res.Diagnostics["MSFT"] == nil {
		t.Fatalf("successful diagnostics missing")
	}
}

func TestOnboardRefusesExisting(t *testing.T) {
	p := newPipeline(t)
	p.seed(t, "AAPL", 25)
	ctx := context.Background()

	recs := []models.FeatureRecord{seedRecord("AAPL", 40)}
	if _, err := p.onboard.OnboardFromRecords(ctx, "AAPL", recs, false); err == nil {
		t.Fatalf("expected refusal to overwrite an existing baseline")
	}
	if _, err := p.onboard.OnboardFromRecords(ctx, "AAPL", recs, true); err != nil {
		t.Fatalf("force onboard: %v", err)
	}
}
