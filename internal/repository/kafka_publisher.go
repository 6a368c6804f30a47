package repository

import (
	"context"
	"errors"

	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	pkgkafka "ClimaPulse/pkg/kafka"
	applogger "ClimaPulse/pkg/logger"
)

var errNoProducer = errors.New("kafka producer is not configured")

// KafkaAlertNotifier publishes alert notifications keyed by topic, so the
// alerts of one topic land on one partition in order.
type KafkaAlertNotifier struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaAlertNotifier(producer *pkgkafka.Producer, topic string) domrepo.Notifier {
	return &KafkaAlertNotifier{producer: producer, topic: topic}
}

func (n *KafkaAlertNotifier) Notify(ctx context.Context, msg models.Notification) error {
	if n.producer == nil {
		return errNoProducer
	}
	return n.producer.Publish(ctx, n.topic, []byte(msg.Event.Topic), msg)
}

// KafkaLogPublisher ships aggregated log batches from the logger's collector.
type KafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaLogPublisher(producer *pkgkafka.Producer) applogger.Publisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	if p.producer == nil {
		return errNoProducer
	}
	return p.producer.Publish(ctx, topic, nil, payload)
}
