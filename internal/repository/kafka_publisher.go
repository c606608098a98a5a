package repository

import (
	"context"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	pkgkafka "MMDiag/pkg/kafka"
)

// KafkaDiagnosticPublisher pushes completed diagnostics onto a Kafka topic,
// keyed by instrument so per-instrument ordering is preserved across
// partitions.
type KafkaDiagnosticPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaDiagnosticPublisher(producer *pkgkafka.Producer, topic string) domrepo.Publisher {
	return &KafkaDiagnosticPublisher{producer: producer, topic: topic}
}

func (p *KafkaDiagnosticPublisher) PublishDiagnostic(ctx context.Context, d *models.DailyDiagnostic) error {
	return p.producer.Publish(ctx, p.topic, []byte(d.Instrument), d)
}

func (p *KafkaDiagnosticPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
