package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	pkgch "MMDiag/pkg/clickhouse"
	applogger "MMDiag/pkg/logger"
)

// FeatureHistorySchema holds the DDL for the daily feature table. One row per
// (instrument, date, feature); ReplacingMergeTree folds reprocessed days onto
// the latest version so replays stay idempotent at the storage level too.
var FeatureHistorySchema = []string{
	`CREATE TABLE IF NOT EXISTS mmdiag_feature_days (
        instrument LowCardinality(String),
        date Date,
        feature LowCardinality(String),
        value Float64,
        source LowCardinality(String),
        version DateTime DEFAULT now()
    ) ENGINE = ReplacingMergeTree(version)
    ORDER BY (instrument, date, feature)`,
}

// CHFeatureHistory implements FeatureHistory backed by ClickHouse.
type CHFeatureHistory struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHFeatureHistory(ch *pkgch.Client) *CHFeatureHistory {
	return &CHFeatureHistory{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (h *CHFeatureHistory) SetLogger(l *applogger.Logger) { h.l = l }

func (h *CHFeatureHistory) Append(ctx context.Context, rec *models.FeatureRecord) error {
	if len(rec.Values) == 0 {
		return nil
	}
	start := time.Now()

	values := make([]string, 0, len(rec.Values))
	args := make([]interface{}, 0, len(rec.Values)*5)
	for feature, v := range rec.Values {
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, rec.Instrument, rec.Date, feature, v, rec.Source)
	}
	q := "INSERT INTO mmdiag_feature_days (instrument, date, feature, value, source) VALUES " +
		strings.Join(values, ",")
	if _, err := h.db.ExecContext(ctx, q, args...); err != nil {
		if h.l != nil {
			h.l.Error("clickhouse append_features error",
				applogger.String("instrument", rec.Instrument),
				applogger.String("date", rec.Date.Format("2006-01-02")),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("append features: %w", err)
	}

	if h.l != nil {
		h.l.Debug("clickhouse append_features ok",
			applogger.String("instrument", rec.Instrument),
			applogger.String("date", rec.Date.Format("2006-01-02")),
			applogger.Int("features", len(rec.Values)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (h *CHFeatureHistory) GetRange(ctx context.Context, instrument string, from, to time.Time) ([]models.FeatureRecord, error) {
	start := time.Now()
	const q = `
        SELECT date, feature, value, source
        FROM mmdiag_feature_days FINAL
        WHERE instrument = ? AND date >= ? AND date <= ?
        ORDER BY date ASC, feature ASC
    `
	rows, err := h.db.QueryContext(ctx, q, instrument, from, to)
	if err != nil {
		if h.l != nil {
			h.l.Error("clickhouse get_range query error",
				applogger.String("instrument", instrument),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get feature range: %w", err)
	}
	defer rows.Close()

	recs, err := h.collectRecords(rows, instrument)
	if err != nil {
		return nil, err
	}
	if h.l != nil {
		h.l.Info("clickhouse get_range ok",
			applogger.String("instrument", instrument),
			applogger.Int("days", len(recs)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return recs, nil
}

func (h *CHFeatureHistory) GetRecent(ctx context.Context, instrument string, n int) ([]models.FeatureRecord, error) {
	const q = `
        SELECT date, feature, value, source
        FROM mmdiag_feature_days FINAL
        WHERE instrument = ?
          AND date IN (
            SELECT DISTINCT date FROM mmdiag_feature_days
            WHERE instrument = ? ORDER BY date DESC LIMIT ?
          )
        ORDER BY date ASC, feature ASC
    `
	rows, err := h.db.QueryContext(ctx, q, instrument, instrument, n)
	if err != nil {
		if h.l != nil {
			h.l.Error("clickhouse get_recent query error",
				applogger.String("instrument", instrument),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get recent features: %w", err)
	}
	defer rows.Close()
	return h.collectRecords(rows, instrument)
}

func (h *CHFeatureHistory) GetDay(ctx context.Context, instrument string, date time.Time) (*models.FeatureRecord, error) {
	const q = `
        SELECT date, feature, value, source
        FROM mmdiag_feature_days FINAL
        WHERE instrument = ? AND date = ?
        ORDER BY feature ASC
    `
	rows, err := h.db.QueryContext(ctx, q, instrument, date)
	if err != nil {
		return nil, fmt.Errorf("get feature day: %w", err)
	}
	defer rows.Close()

	recs, err := h.collectRecords(rows, instrument)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no features for %s on %s", instrument, date.Format("2006-01-02"))
	}
	return &recs[0], nil
}

// collectRecords folds per-feature rows back into one FeatureRecord per day.
// Rows must arrive ordered by date.
func (h *CHFeatureHistory) collectRecords(rows *sql.Rows, instrument string) ([]models.FeatureRecord, error) {
	var recs []models.FeatureRecord
	for rows.Next() {
		var (
			date    time.Time
			feature string
			value   float64
			source  string
		)
		if err := rows.Scan(&date, &feature, &value, &source); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		if len(recs) == 0 || !recs[len(recs)-1].Date.Equal(date) {
			recs = append(recs, models.FeatureRecord{
				Instrument: instrument,
				Date:       date,
				Values:     make(map[string]float64),
				Source:     source,
			})
		}
		recs[len(recs)-1].Values[feature] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return recs, nil
}

var _ domrepo.FeatureHistory = (*CHFeatureHistory)(nil)
