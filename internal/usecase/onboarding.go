package usecase

import (
	"context"
	"fmt"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	"MMDiag/internal/services/diagnostic"
	applogger "MMDiag/pkg/logger"
)

// OnboardingUseCase builds the initial baseline for an instrument from stored
// feature history. Until enough history accumulates, downstream runs will see
// a PARTIAL or EMPTY baseline and exclude features accordingly; onboarding
// never fabricates history to shortcut the warm-up.
type OnboardingUseCase struct {
	baselines domrepo.BaselineStore
	history   domrepo.FeatureHistory
	calc      *diagnostic.BaselineCalculator
	l         *applogger.Logger
}

func NewOnboardingUseCase(baselines domrepo.BaselineStore, history domrepo.FeatureHistory, calc *diagnostic.BaselineCalculator, l *applogger.Logger) *OnboardingUseCase {
	return &OnboardingUseCase{baselines: baselines, history: history, calc: calc, l: l}
}

// OnboardParams controls one onboarding run.
type OnboardParams struct {
	Instrument string
	// Lookback bounds how many stored days seed the baseline. Zero means the
	// full statistics window.
	Lookback int
	// Force overwrites an existing baseline. Off by default: onboarding an
	// already-tracked instrument is usually a mistake.
	Force bool
}

func (uc *OnboardingUseCase) Onboard(ctx context.Context, p OnboardParams) (*models.Baseline, error) {
	if p.Instrument == "" {
		return nil, fmt.Errorf("instrument required")
	}

	exists, err := uc.baselines.Exists(ctx, p.Instrument)
	if err != nil {
		return nil, fmt.Errorf("check baseline: %w", err)
	}
	if exists && !p.Force {
		return nil, fmt.Errorf("baseline for %s already exists", p.Instrument)
	}

	lookback := p.Lookback
	if lookback <= 0 {
		lookback = uc.calc.Window()
	}
	records, err := uc.history.GetRecent(ctx, p.Instrument, lookback)
	if err != nil {
		return nil, fmt.Errorf("load seed history: %w", err)
	}

	b, err := uc.calc.Compute(p.Instrument, records)
	if err != nil {
		return nil, fmt.Errorf("compute baseline: %w", err)
	}
	if err := uc.baselines.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save baseline: %w", err)
	}

	if uc.l != nil {
		uc.l.Info("instrument onboarded",
			applogger.String("instrument", p.Instrument),
			applogger.String("type", string(b.Type)),
			applogger.Int("seed_days", len(records)),
			applogger.String("state", string(b.State())),
		)
	}
	return b, nil
}

// OnboardFromRecords seeds a baseline directly from caller-supplied records,
// for backfills where history has not been loaded into storage yet. Records
// are also appended to feature history so later reprocessing can see them.
func (uc *OnboardingUseCase) OnboardFromRecords(ctx context.Context, instrument string, records []models.FeatureRecord, force bool) (*models.Baseline, error) {
	exists, err := uc.baselines.Exists(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("check baseline: %w", err)
	}
	if exists && !force {
		return nil, fmt.Errorf("baseline for %s already exists", instrument)
	}

	for i := range records {
		if err := records[i].ValidateDomains(); err != nil {
			return nil, err
		}
	}
	b, err := uc.calc.Compute(instrument, records)
	if err != nil {
		return nil, fmt.Errorf("compute baseline: %w", err)
	}

	for i := range records {
		if err := uc.history.Append(ctx, &records[i]); err != nil {
			return nil, fmt.Errorf("append seed record: %w", err)
		}
	}
	if err := uc.baselines.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save baseline: %w", err)
	}
	return b, nil
}
