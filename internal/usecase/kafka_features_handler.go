package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	"MMDiag/internal/services/diagnostic"
	pkgkafka "MMDiag/pkg/kafka"
	"MMDiag/pkg/util"
)

// KafkaFeaturesHandler consumes end-of-day feature records and drives the
// diagnostic pipeline. It is the ingestion boundary: greek signs are
// normalized and domains validated here, before anything touches storage or
// the engine.
type KafkaFeaturesHandler struct {
	topic   string
	history domrepo.FeatureHistory
	runner  *DailyRunUseCase
	metrics domrepo.Metrics
}

func NewKafkaFeaturesHandler(topic string, history domrepo.FeatureHistory, runner *DailyRunUseCase, metrics domrepo.Metrics) *KafkaFeaturesHandler {
	return &KafkaFeaturesHandler{topic: topic, history: history, runner: runner, metrics: metrics}
}

func (h *KafkaFeaturesHandler) Topic() string { return h.topic }

// incoming message schema:
// {instrument, date: "2006-01-02", values: {feature: value}, source, greek_source}
func (h *KafkaFeaturesHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Instrument  string             `json:"instrument"`
		Date        string             `json:"date"`
		Values      map[string]float64 `json:"values"`
		Source      string             `json:"source"`
		GreekSource string             `json:"greek_source"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.countError("consumer_unmarshal")
		return err
	}
	if m.Instrument == "" || len(m.Values) == 0 {
		h.countError("consumer_empty")
		return fmt.Errorf("feature message missing instrument or values")
	}
	date, err := util.ParseDay(m.Date)
	if err != nil {
		h.countError("consumer_date")
		return fmt.Errorf("parse date %q: %w", m.Date, err)
	}

	rec := &models.FeatureRecord{
		Instrument: m.Instrument,
		Date:       date,
		Values:     m.Values,
		Source:     m.Source,
	}

	greekSource := diagnostic.GreekSource(m.GreekSource)
	if m.GreekSource == "" {
		greekSource = diagnostic.SourceDealerPerspective
	}
	if err := diagnostic.NormalizeRecordGreeks(rec, greekSource); err != nil {
		h.countError("sign_convention")
		return err
	}
	if err := rec.ValidateDomains(); err != nil {
		h.countError("invalid_domain")
		return err
	}

	start := time.Now()
	if err := h.history.Append(ctx, rec); err != nil {
		h.countError("history_append")
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordLatency("history_append", time.Since(start).Seconds())
	}

	_, err = h.runner.RunRecord(ctx, rec)
	return err
}

func (h *KafkaFeaturesHandler) countError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaFeaturesHandler)(nil)
