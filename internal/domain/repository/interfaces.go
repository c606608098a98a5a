package repository

import (
	"context"
	"time"

	"MMDiag/internal/domain/models"
)

// BaselineStore is the sole durable holder of baseline state, keyed by
// instrument identifier. Load returns models.ErrMissingBaseline when no
// baseline exists.
type BaselineStore interface {
	Load(ctx context.Context, instrument string) (*models.Baseline, error)
	Save(ctx context.Context, baseline *models.Baseline) error
	Exists(ctx context.Context, instrument string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// FeatureHistory holds the append-only daily feature records per instrument.
type FeatureHistory interface {
	Append(ctx context.Context, rec *models.FeatureRecord) error
	GetRange(ctx context.Context, instrument string, from, to time.Time) ([]models.FeatureRecord, error)
	GetRecent(ctx context.Context, instrument string, n int) ([]models.FeatureRecord, error)
	GetDay(ctx context.Context, instrument string, date time.Time) (*models.FeatureRecord, error)
}

// DiagnosticSink receives combined per-day records. Store overwrites an
// existing (instrument, date) row; with identical inputs the replacement is
// identical, so the sink stays effectively append-only.
type DiagnosticSink interface {
	Store(ctx context.Context, d *models.DailyDiagnostic) error
	Latest(ctx context.Context, instrument string) (*models.DailyDiagnostic, error)
	GetDay(ctx context.Context, instrument string, date time.Time) (*models.DailyDiagnostic, error)
}

// Publisher pushes completed diagnostics to downstream consumers.
type Publisher interface {
	PublishDiagnostic(ctx context.Context, d *models.DailyDiagnostic) error
	Close() error
}

// Metrics records operational telemetry for the diagnostic pipeline.
type Metrics interface {
	RecordDiagnostic(instrument string, regime string)
	RecordScore(instrument string, score float64)
	RecordError(kind string)
	RecordDrift(instrument, feature string)
	RecordLatency(op string, seconds float64)
}
