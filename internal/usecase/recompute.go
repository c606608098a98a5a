package usecase

import (
	"context"
	"fmt"
	"time"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	"MMDiag/internal/services/diagnostic"
	applogger "MMDiag/pkg/logger"
)

// RecomputeUseCase drives the periodic refresh of locked baseline statistics.
// Locked statistics update only here; daily runs never touch them.
type RecomputeUseCase struct {
	baselines domrepo.BaselineStore
	calc      *diagnostic.BaselineCalculator
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewRecomputeUseCase(baselines domrepo.BaselineStore, calc *diagnostic.BaselineCalculator, metrics domrepo.Metrics, l *applogger.Logger) *RecomputeUseCase {
	return &RecomputeUseCase{baselines: baselines, calc: calc, metrics: metrics, l: l}
}

// RefreshLocked recomputes the locked group for one instrument and persists
// the result. Drift warnings are surfaced to the caller and counted, never
// fatal.
func (uc *RecomputeUseCase) RefreshLocked(ctx context.Context, instrument string, asOf time.Time) ([]models.DriftWarning, error) {
	b, err := uc.baselines.Load(ctx, instrument)
	if err != nil {
		return nil, err
	}

	warnings := uc.calc.RecomputeLocked(b, asOf)
	if err := uc.baselines.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save baseline: %w", err)
	}

	if uc.metrics != nil {
		for _, w := range warnings {
			uc.metrics.RecordDrift(w.Instrument, w.Feature)
		}
	}
	if uc.l != nil {
		uc.l.Info("locked statistics refreshed",
			applogger.String("instrument", instrument),
			applogger.Int("drift_warnings", len(warnings)),
		)
	}
	return warnings, nil
}

// RefreshAllLocked refreshes every tracked instrument. Per-instrument
// failures are collected, not propagated, so one bad baseline cannot block
// the rest of the fleet.
func (uc *RecomputeUseCase) RefreshAllLocked(ctx context.Context, asOf time.Time) (map[string]error, error) {
	instruments, err := uc.baselines.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}

	failures := make(map[string]error)
	for _, instrument := range instruments {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if _, err := uc.RefreshLocked(ctx, instrument, asOf); err != nil {
			failures[instrument] = err
			if uc.l != nil {
				uc.l.Error("locked refresh failed",
					applogger.String("instrument", instrument),
					applogger.Error(err),
				)
			}
		}
	}
	return failures, nil
}
