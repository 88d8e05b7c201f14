package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMSpark/pkg/cache"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	now := time.Date(2025, 11, 14, 10, 0, 0, 0, time.UTC)
	l := New(1, 2)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "1.2.3.4")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, ok)
}

func TestLimiterSweepsIdleKeys(t *testing.T) {
	now := time.Date(2025, 11, 14, 10, 0, 0, 0, time.UTC)
	l := New(1, 1)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	assert.Equal(t, 2, l.Len())

	now = now.Add(11 * time.Minute)
	_, _ = l.Allow(ctx, "c")
	assert.Equal(t, 1, l.Len())
}

func TestSharedFixedWindow(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	now := time.Date(2025, 11, 14, 10, 0, 0, 0, time.UTC)
	s := NewShared(mc, 2, time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for _, want := range []bool{true, true, false} {
		ok, err := s.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}

	now = now.Add(time.Minute)
	ok, err := s.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok)
}
