package repository

import (
	"context"
	"strconv"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
	pkgkafka "SignalTrack/pkg/kafka"
)

// KafkaEventPublisher emits transition and retrain events to one topic. The
// envelope type field and the event-type header both name the event.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

const (
	eventTransition = "signal.transition"
	eventRetrain    = "model.retrain"
)

type eventEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (p *KafkaEventPublisher) PublishTransition(ctx context.Context, e models.TransitionEvent) error {
	return p.producer.Publish(ctx, p.topic, eventTransition, []byte(e.SignalID), eventEnvelope{Type: eventTransition, Data: e})
}

func (p *KafkaEventPublisher) PublishRetrain(ctx context.Context, e models.RetrainEvent) error {
	key := []byte("model-" + strconv.FormatInt(e.VersionID, 10))
	return p.producer.Publish(ctx, p.topic, eventRetrain, key, eventEnvelope{Type: eventRetrain, Data: e})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
