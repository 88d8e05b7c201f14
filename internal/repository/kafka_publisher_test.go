package repository

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMSpark/internal/domain/models"
	pkgkafka "EMSpark/pkg/kafka"
)

type sentMessage struct {
	topic   string
	key     string
	value   interface{}
	headers []kafka.Header
}

type fakeSender struct{ sent []sentMessage }

func (f *fakeSender) Publish(_ context.Context, topic string, key []byte, value interface{}, headers ...kafka.Header) error {
	f.sent = append(f.sent, sentMessage{topic, string(key), value, headers})
	return nil
}

func (f *fakeSender) Close() error { return nil }

func TestKafkaPublisherRoutesByKind(t *testing.T) {
	fs := &fakeSender{}
	p := &KafkaEventPublisher{producer: fs, eventsTopic: "events", resultsTopic: "results"}

	require.NoError(t, p.PublishEvent(context.Background(), models.QueryEvent{ID: "r1", Query: "DAM today"}))
	require.NoError(t, p.PublishReport(context.Background(), models.ReportResponse{Format: "markdown"}))

	require.Len(t, fs.sent, 2)
	assert.Equal(t, "events", fs.sent[0].topic)
	assert.Equal(t, "r1", fs.sent[0].key)
	require.Len(t, fs.sent[0].headers, 1)
	assert.Equal(t, pkgkafka.HeaderRequestID, fs.sent[0].headers[0].Key)
	assert.Equal(t, "results", fs.sent[1].topic)
	assert.Empty(t, fs.sent[1].headers)
}

func TestKafkaJobQueueEnqueue(t *testing.T) {
	fs := &fakeSender{}
	q := &KafkaJobQueue{producer: fs, topic: "requests"}

	req := models.ReportRequest{ID: "job-1", Query: "GDAM yesterday", Format: "html"}
	require.NoError(t, q.Enqueue(context.Background(), req))

	require.Len(t, fs.sent, 1)
	assert.Equal(t, "requests", fs.sent[0].topic)
	assert.Equal(t, "job-1", fs.sent[0].key)
	assert.Equal(t, req, fs.sent[0].value)
}
