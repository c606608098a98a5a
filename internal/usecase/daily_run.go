package usecase

import (
	"context"
	"fmt"
	"time"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	domservice "MMDiag/internal/domain/service"
	"MMDiag/internal/services/diagnostic"
	applogger "MMDiag/pkg/logger"
)

// DailyRunUseCase runs the full diagnostic pipeline for one (instrument,
// date): normalize, classify, score, explain, persist, publish, then fold the
// day into the baseline.
//
// The pipeline normalizes against a snapshot of the baseline taken as of the
// start of the date, so rerunning a day after its record was already applied
// produces the identical diagnostic.
type DailyRunUseCase struct {
	baselines  domrepo.BaselineStore
	history    domrepo.FeatureHistory
	sink       domrepo.DiagnosticSink
	publisher  domrepo.Publisher
	metrics    domrepo.Metrics
	calc       *diagnostic.BaselineCalculator
	normalizer domservice.Normalizer
	classifier domservice.RegimeClassifier
	scorer     domservice.UnusualnessScorer
	explainer  domservice.Explainer
	l          *applogger.Logger
}

// DailyRunDeps bundles the pipeline's collaborators. Publisher and Metrics
// may be nil; everything else is required.
type DailyRunDeps struct {
	Baselines  domrepo.BaselineStore
	History    domrepo.FeatureHistory
	Sink       domrepo.DiagnosticSink
	Publisher  domrepo.Publisher
	Metrics    domrepo.Metrics
	Calc       *diagnostic.BaselineCalculator
	Normalizer domservice.Normalizer
	Classifier domservice.RegimeClassifier
	Scorer     domservice.UnusualnessScorer
	Explainer  domservice.Explainer
	Logger     *applogger.Logger
}

func NewDailyRunUseCase(d DailyRunDeps) (*DailyRunUseCase, error) {
	switch {
	case d.Baselines == nil:
		return nil, fmt.Errorf("baseline store is required")
	case d.History == nil:
		return nil, fmt.Errorf("feature history is required")
	case d.Sink == nil:
		return nil, fmt.Errorf("diagnostic sink is required")
	case d.Calc == nil || d.Normalizer == nil || d.Classifier == nil || d.Scorer == nil || d.Explainer == nil:
		return nil, fmt.Errorf("diagnostic engine components are required")
	}
	return &DailyRunUseCase{
		baselines:  d.Baselines,
		history:    d.History,
		sink:       d.Sink,
		publisher:  d.Publisher,
		metrics:    d.Metrics,
		calc:       d.Calc,
		normalizer: d.Normalizer,
		classifier: d.Classifier,
		scorer:     d.Scorer,
		explainer:  d.Explainer,
		l:          d.Logger,
	}, nil
}

// Run processes the stored feature record for the given date.
func (uc *DailyRunUseCase) Run(ctx context.Context, instrument string, date time.Time) (*models.DailyDiagnostic, error) {
	rec, err := uc.history.GetDay(ctx, instrument, date)
	if err != nil {
		return nil, fmt.Errorf("load feature day: %w", err)
	}
	return uc.RunRecord(ctx, rec)
}

// RunRecord processes an already-loaded record. The record is assumed to be
// stored in feature history by the ingestion boundary before this is called.
func (uc *DailyRunUseCase) RunRecord(ctx context.Context, rec *models.FeatureRecord) (*models.DailyDiagnostic, error) {
	start := time.Now()

	baseline, err := uc.baselines.Load(ctx, rec.Instrument)
	if err != nil {
		uc.countError("missing_baseline")
		return nil, err
	}
	if err := diagnostic.CheckInstrumentType(baseline); err != nil {
		uc.countError("instrument_type_mismatch")
		return nil, err
	}

	// consistent view as of the start of the date; the live baseline is only
	// touched after the diagnostic is complete
	snap := uc.calc.SnapshotBefore(baseline, rec.Date)

	set, err := uc.normalizer.Normalize(rec, snap)
	if err != nil {
		uc.countError("normalize")
		return nil, err
	}

	regime := uc.classifier.Classify(set)
	score := uc.scorer.Score(set, snap.ScoresBefore(rec.Date))
	explanation := uc.explainer.Explain(set, regime, score)

	d := &models.DailyDiagnostic{
		Instrument:  rec.Instrument,
		Date:        rec.Date,
		Normalized:  *set,
		Regime:      regime,
		Unusualness: score,
		Explanation: explanation,
	}

	if err := uc.sink.Store(ctx, d); err != nil {
		uc.countError("sink")
		return nil, fmt.Errorf("store diagnostic: %w", err)
	}
	if uc.publisher != nil {
		if err := uc.publisher.PublishDiagnostic(ctx, d); err != nil {
			// downstream fan-out is best effort; the sink already holds the record
			uc.countError("publish")
			if uc.l != nil {
				uc.l.Warn("diagnostic publish failed",
					applogger.String("instrument", d.Instrument),
					applogger.Error(err),
				)
			}
		}
	}

	if err := uc.foldIntoBaseline(ctx, baseline, rec, score); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.RecordDiagnostic(d.Instrument, string(regime.Label))
		if score.Defined {
			uc.metrics.RecordScore(d.Instrument, score.Score)
		}
		uc.metrics.RecordLatency("daily_run", time.Since(start).Seconds())
	}
	if uc.l != nil {
		uc.l.Info("daily diagnostic complete",
			applogger.String("instrument", d.Instrument),
			applogger.String("date", d.Date.Format("2006-01-02")),
			applogger.String("regime", string(regime.Label)),
			applogger.Float64("score", score.Score),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return d, nil
}

// foldIntoBaseline applies the day's record and raw score to the live
// baseline and persists it. Drift warnings are logged inside the calculator
// and counted here; they never fail the run.
func (uc *DailyRunUseCase) foldIntoBaseline(ctx context.Context, baseline *models.Baseline, rec *models.FeatureRecord, score models.UnusualnessResult) error {
	warnings, err := uc.calc.Update(baseline, rec)
	if err != nil {
		uc.countError("baseline_update")
		return fmt.Errorf("update baseline: %w", err)
	}
	if uc.metrics != nil {
		for _, w := range warnings {
			uc.metrics.RecordDrift(w.Instrument, w.Feature)
		}
	}
	if score.Defined {
		baseline.RecordRawScore(rec.Date, score.RawScore)
	}
	if err := uc.baselines.Save(ctx, baseline); err != nil {
		uc.countError("baseline_save")
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}

func (uc *DailyRunUseCase) countError(kind string) {
	if uc.metrics != nil {
		uc.metrics.RecordError(kind)
	}
}
