package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	pkgch "MMDiag/pkg/clickhouse"
	applogger "MMDiag/pkg/logger"
)

// DiagnosticSchema holds the DDL for the diagnostic table. Queryable columns
// for the fields dashboards filter on, the full record as JSON alongside.
// ReplacingMergeTree on (instrument, date) makes reprocessing a clean
// overwrite.
var DiagnosticSchema = []string{
	`CREATE TABLE IF NOT EXISTS mmdiag_diagnostics (
        instrument LowCardinality(String),
        date Date,
        regime LowCardinality(String),
        score_defined UInt8,
        score Float64,
        band LowCardinality(String),
        baseline_state LowCardinality(String),
        payload String,
        version DateTime DEFAULT now()
    ) ENGINE = ReplacingMergeTree(version)
    ORDER BY (instrument, date)`,
}

// CHDiagnosticSink implements DiagnosticSink backed by ClickHouse.
type CHDiagnosticSink struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHDiagnosticSink(ch *pkgch.Client) *CHDiagnosticSink {
	return &CHDiagnosticSink{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHDiagnosticSink) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHDiagnosticSink) Store(ctx context.Context, d *models.DailyDiagnostic) error {
	start := time.Now()
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode diagnostic: %w", err)
	}

	defined := uint8(0)
	if d.Unusualness.Defined {
		defined = 1
	}
	const q = `INSERT INTO mmdiag_diagnostics
        (instrument, date, regime, score_defined, score, band, baseline_state, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		d.Instrument,
		d.Date,
		string(d.Regime.Label),
		defined,
		d.Unusualness.Score,
		string(d.Unusualness.Band),
		string(d.Normalized.BaselineState),
		string(payload),
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse store_diagnostic error",
				applogger.String("instrument", d.Instrument),
				applogger.String("date", d.Date.Format("2006-01-02")),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("store diagnostic: %w", err)
	}

	if s.l != nil {
		s.l.Debug("clickhouse store_diagnostic ok",
			applogger.String("instrument", d.Instrument),
			applogger.String("date", d.Date.Format("2006-01-02")),
			applogger.String("regime", string(d.Regime.Label)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHDiagnosticSink) Latest(ctx context.Context, instrument string) (*models.DailyDiagnostic, error) {
	const q = `
        SELECT payload FROM mmdiag_diagnostics FINAL
        WHERE instrument = ?
        ORDER BY date DESC
        LIMIT 1
    `
	return s.queryOne(ctx, q, instrument)
}

func (s *CHDiagnosticSink) GetDay(ctx context.Context, instrument string, date time.Time) (*models.DailyDiagnostic, error) {
	const q = `
        SELECT payload FROM mmdiag_diagnostics FINAL
        WHERE instrument = ? AND date = ?
        LIMIT 1
    `
	return s.queryOne(ctx, q, instrument, date)
}

func (s *CHDiagnosticSink) queryOne(ctx context.Context, q string, args ...interface{}) (*models.DailyDiagnostic, error) {
	var payload string
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("diagnostic not found")
		}
		return nil, fmt.Errorf("query diagnostic: %w", err)
	}
	var d models.DailyDiagnostic
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("decode diagnostic: %w", err)
	}
	return &d, nil
}

var _ domrepo.DiagnosticSink = (*CHDiagnosticSink)(nil)
