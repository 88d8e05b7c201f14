package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFatal = errors.New("fatal")

func offlineQueue(limit int) *RedisQueue {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return NewRedisQueue(nil, Config{RetryLimit: limit}, client,
		WithPermanent(func(err error) bool { return errors.Is(err, errFatal) }))
}

func TestProcessOutcomes(t *testing.T) {
	q := offlineQueue(2)
	q.Register("ok", func(context.Context, Message) error { return nil })
	q.Register("flaky", func(context.Context, Message) error { return errors.New("timeout") })
	q.Register("fatal", func(context.Context, Message) error { return errFatal })
	q.Register("cancel", func(context.Context, Message) error { return context.Canceled })

	ctx := context.Background()
	assert.Equal(t, outcomeDone, q.process(ctx, Message{ID: "1", Type: "ok"}))
	assert.Equal(t, outcomeRetry, q.process(ctx, Message{ID: "2", Type: "flaky"}))
	assert.Equal(t, outcomeDead, q.process(ctx, Message{ID: "3", Type: "flaky", Attempts: 2}))
	assert.Equal(t, outcomeDead, q.process(ctx, Message{ID: "4", Type: "fatal"}))
	assert.Equal(t, outcomeCancelled, q.process(ctx, Message{ID: "5", Type: "cancel"}))
	assert.Equal(t, outcomeDead, q.process(ctx, Message{ID: "6", Type: "unknown"}))
}

func TestEnqueueRequiresStart(t *testing.T) {
	q := offlineQueue(0)
	err := q.Enqueue(context.Background(), "report", "", map[string]string{"q": "DAM today"})
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Error(t, q.Start())
}

func TestDecode(t *testing.T) {
	type payload struct {
		Query string `json:"query"`
	}
	v, err := Decode[payload](Message{Payload: []byte(`{"query":"RTM yesterday"}`)})
	require.NoError(t, err)
	assert.Equal(t, "RTM yesterday", v.Query)

	_, err = Decode[payload](Message{Payload: []byte(`[`)})
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	q := offlineQueue(0)
	assert.Equal(t, 1, q.config.Workers)
	assert.Equal(t, 10*time.Second, q.config.RetryDelay)
	assert.Equal(t, "emspark:queue:messages", q.queueKey())
	assert.Equal(t, "emspark:queue:retry", q.retryKey())
	assert.Equal(t, "emspark:queue:dlq", q.deadLetterKey())
}

// Runs against a real server when EMSPARK_TEST_REDIS_ADDR is set.
func TestRedisQueueDelivers(t *testing.T) {
	addr := os.Getenv("EMSPARK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EMSPARK_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	prefix := "emspark:test:" + time.Now().Format("150405.000")
	q := NewRedisQueue(nil, Config{Workers: 2, KeyPrefix: prefix}, client)
	got := make(chan Message, 1)
	q.Register("report", func(_ context.Context, m Message) error {
		got <- m
		return nil
	})
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "report", "job-1", map[string]string{"query": "DAM today"}))
	select {
	case m := <-got:
		assert.Equal(t, "job-1", m.ID)
		assert.JSONEq(t, `{"query":"DAM today"}`, string(m.Payload))
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}
