package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeCommitter struct{ committed []int64 }

func (c *fakeCommitter) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		c.committed = append(c.committed, m.Offset)
	}
	return nil
}

type funcHandler struct {
	topic string
	calls int
	fn    func(ctx context.Context, data []byte) error
}

func (h *funcHandler) Topic() string { return h.topic }

func (h *funcHandler) Handle(ctx context.Context, data []byte) error {
	h.calls++
	return h.fn(ctx, data)
}

func TestProducerEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	var observed []string
	p := newProducerWithWriter(w, func(topic string, n int, err error) {
		observed = append(observed, topic)
	})

	require.NoError(t, p.Publish(context.Background(), "events", []byte("k"), map[string]int{"a": 1},
		kafka.Header{Key: HeaderRequestID, Value: []byte("r-1")}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", []byte("raw")))
	require.NoError(t, p.PublishBatch(context.Background(), "events", []Message{{Value: "x"}, {Value: "y"}}))

	require.Len(t, w.msgs, 4)
	assert.JSONEq(t, `{"a":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "r-1", HeaderValue(w.msgs[0], HeaderRequestID))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "logs", w.msgs[1].Topic)
	assert.Equal(t, []string{"events", "logs", "events"}, observed)
}

func TestProducerWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducerWithWriter(&fakeWriter{err: boom}, nil)
	err := p.PublishMessage(context.Background(), "logs", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func newTestConsumer(retries int, dlq bool) (*Consumer, *fakeWriter, *fakeCommitter) {
	cfg := &ConsumerConfig{RetryMax: retries, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond, BufferSize: 1}
	c := newConsumer(cfg, nil)
	fc := &fakeCommitter{}
	c.commit = func(string) offsetCommitter { return fc }
	w := &fakeWriter{}
	if dlq {
		cfg.DLQTopic = "jobs.dlq"
		c.dlq = w
	}
	return c, w, fc
}

func TestConsumerRetriesThenSucceeds(t *testing.T) {
	c, dlq, fc := newTestConsumer(3, true)
	h := &funcHandler{topic: "jobs"}
	h.fn = func(context.Context, []byte) error {
		if h.calls < 3 {
			return errors.New("transient")
		}
		return nil
	}
	c.RegisterHandler(h)

	c.process(&message{topic: "jobs", km: kafka.Message{Offset: 7, Value: []byte("{}")}})

	assert.Equal(t, 3, h.calls)
	assert.Empty(t, dlq.msgs)
	assert.Equal(t, []int64{7}, fc.committed)
}

func TestConsumerDeadLettersAfterRetries(t *testing.T) {
	c, dlq, fc := newTestConsumer(2, true)
	h := &funcHandler{topic: "jobs", fn: func(context.Context, []byte) error { return errors.New("always") }}
	c.RegisterHandler(h)

	c.process(&message{topic: "jobs", km: kafka.Message{Offset: 9, Value: []byte("payload")}})

	assert.Equal(t, 3, h.calls)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "jobs.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, "jobs", HeaderValue(dlq.msgs[0], "source_topic"))
	assert.Equal(t, []int64{9}, fc.committed)
}

func TestConsumerPermanentErrorSkipsRetry(t *testing.T) {
	c, _, fc := newTestConsumer(5, false)
	h := &funcHandler{topic: "jobs", fn: func(context.Context, []byte) error {
		return Permanent(errors.New("bad payload"))
	}}
	c.RegisterHandler(h)

	c.process(&message{topic: "jobs", km: kafka.Message{Offset: 1}})

	assert.Equal(t, 1, h.calls)
	assert.Empty(t, fc.committed, "without a DLQ a failed message stays uncommitted")
}

func TestConsumerRecoversHandlerPanic(t *testing.T) {
	c, dlq, _ := newTestConsumer(0, true)
	h := &funcHandler{topic: "jobs", fn: func(context.Context, []byte) error { panic("boom") }}
	c.RegisterHandler(h)

	assert.NotPanics(t, func() {
		c.process(&message{topic: "jobs", km: kafka.Message{Offset: 2}})
	})
	require.Len(t, dlq.msgs, 1)
	assert.Contains(t, HeaderValue(dlq.msgs[0], "error"), CodePanic)
}

func TestRequestHookPropagatesHeader(t *testing.T) {
	c, _, _ := newTestConsumer(0, false)
	c.WithConsumerHook(NewHookChain(RequestHook(), nil))
	var got string
	h := &funcHandler{topic: "jobs", fn: func(ctx context.Context, _ []byte) error {
		got = RequestID(ctx)
		_, ok := StartTime(ctx)
		assert.True(t, ok)
		return nil
	}}
	c.RegisterHandler(h)

	c.process(&message{topic: "jobs", km: kafka.Message{
		Headers: []kafka.Header{{Key: HeaderRequestID, Value: []byte("req-42")}},
	}})
	assert.Equal(t, "req-42", got)
}

func TestHookChainTurnsPanicIntoError(t *testing.T) {
	var errs int
	chain := NewHookChain(
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		}},
		HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) { errs++ }},
	)
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, CodePanic, he.Code)
	assert.Equal(t, 1, errs)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
}
