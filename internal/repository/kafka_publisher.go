package repository

import (
	"context"

	"github.com/segmentio/kafka-go"

	"EMSpark/internal/domain/models"
	pkgkafka "EMSpark/pkg/kafka"
)

type kafkaSender interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...kafka.Header) error
	Close() error
}

// KafkaEventPublisher emits query audit events and finished reports.
// Both are keyed by request id so one request stays on one partition.
type KafkaEventPublisher struct {
	producer     kafkaSender
	eventsTopic  string
	resultsTopic string
}

func NewKafkaEventPublisher(p *pkgkafka.Producer, eventsTopic, resultsTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, eventsTopic: eventsTopic, resultsTopic: resultsTopic}
}

func (k *KafkaEventPublisher) PublishEvent(ctx context.Context, ev models.QueryEvent) error {
	return k.producer.Publish(ctx, k.eventsTopic, []byte(ev.ID), ev, requestHeader(ev.ID)...)
}

func (k *KafkaEventPublisher) PublishReport(ctx context.Context, resp models.ReportResponse) error {
	return k.producer.Publish(ctx, k.resultsTopic, []byte(resp.ID), resp, requestHeader(resp.ID)...)
}

func (k *KafkaEventPublisher) Close() error {
	return k.producer.Close()
}

// KafkaJobQueue hands report requests to the async workers.
type KafkaJobQueue struct {
	producer kafkaSender
	topic    string
}

func NewKafkaJobQueue(p *pkgkafka.Producer, topic string) *KafkaJobQueue {
	return &KafkaJobQueue{producer: p, topic: topic}
}

// Enqueue does not close the shared producer; KafkaEventPublisher owns it.
func (q *KafkaJobQueue) Enqueue(ctx context.Context, req models.ReportRequest) error {
	return q.producer.Publish(ctx, q.topic, []byte(req.ID), req, requestHeader(req.ID)...)
}

func requestHeader(id string) []kafka.Header {
	if id == "" {
		return nil
	}
	return []kafka.Header{{Key: pkgkafka.HeaderRequestID, Value: []byte(id)}}
}

// NopEventPublisher drops everything. It is used when Kafka is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishEvent(context.Context, models.QueryEvent) error       { return nil }
func (NopEventPublisher) PublishReport(context.Context, models.ReportResponse) error { return nil }
func (NopEventPublisher) Close() error                                               { return nil }
